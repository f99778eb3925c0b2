// Command seed creates the record-store indexes and pre-populates the topic and
// expertise taxonomies with a starter set of labels.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/database"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/folio/folio-api/pkg/logger"
)

var defaultLabels = map[taxonomy.Kind][]string{
	taxonomy.KindTopic: {
		"Street Photography", "Portraits", "Landscape", "Architecture", "Fashion",
		"Wildlife", "Documentary", "Illustration", "Product Design", "Film",
	},
	taxonomy.KindExpertise: {
		"Lighting", "Retouching", "Color Grading", "Art Direction", "Composition",
		"Drone Operation", "Studio Management", "Typography",
	},
}

func main() {
	dryRun := flag.Bool("dry-run", false, "canonicalize and report without touching the database")
	topics := flag.String("topics", "", "comma-separated topic labels (default: built-in starter set)")
	expertise := flag.String("expertise", "", "comma-separated expertise labels (default: built-in starter set)")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	labels := map[taxonomy.Kind][]string{
		taxonomy.KindTopic:     pick(*topics, defaultLabels[taxonomy.KindTopic]),
		taxonomy.KindExpertise: pick(*expertise, defaultLabels[taxonomy.KindExpertise]),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var repos map[taxonomy.Kind]taxonomy.Repository
	if *dryRun {
		repos = map[taxonomy.Kind]taxonomy.Repository{
			taxonomy.KindTopic:     taxonomy.NewMemoryRepository(),
			taxonomy.KindExpertise: taxonomy.NewMemoryRepository(),
		}
	} else {
		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Fatalf("failed to load config: %v", err)
		}
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3, func(attempt int, err error) {
			logger.Warnf("attempt %d/3: failed to connect to MongoDB: %v", attempt, err)
		})
		if err != nil {
			logger.Fatalf("could not connect to MongoDB: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		db := client.Database(cfg.MongoDB.Database)
		if err := database.EnsureIndexes(ctx, db); err != nil {
			logger.Fatalf("failed to ensure indexes: %v", err)
		}
		repos = map[taxonomy.Kind]taxonomy.Repository{
			taxonomy.KindTopic:     taxonomy.NewMongoRepository(db.Collection(database.TopicsCollection)),
			taxonomy.KindExpertise: taxonomy.NewMongoRepository(db.Collection(database.ExpertiseCollection)),
		}
	}

	report, err := seed(ctx, taxonomy.NewService(repos, logger.L()), labels)
	if err != nil {
		logger.Fatalf("seed failed: %v", err)
	}
	for _, kind := range []taxonomy.Kind{taxonomy.KindTopic, taxonomy.KindExpertise} {
		fmt.Printf("%s: %s\n", kind, strings.Join(report[kind], ", "))
	}
}

func pick(flagValue string, fallback []string) []string {
	if strings.TrimSpace(flagValue) == "" {
		return fallback
	}
	return strings.Split(flagValue, ",")
}

// seed upserts every label and returns the canonical values per kind. Blank entries are
// skipped; re-running is harmless since upsert is idempotent on the canonical value.
func seed(ctx context.Context, tax *taxonomy.Service, labels map[taxonomy.Kind][]string) (map[taxonomy.Kind][]string, error) {
	out := make(map[taxonomy.Kind][]string, len(labels))
	for kind, list := range labels {
		var clean []string
		for _, l := range list {
			if strings.TrimSpace(l) != "" {
				clean = append(clean, l)
			}
		}
		values, err := tax.UpsertAll(ctx, kind, clean)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", kind, err)
		}
		out[kind] = values
	}
	return out, nil
}
