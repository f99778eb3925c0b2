package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/rs/zerolog"
)

// MaxLabelLength caps free-text labels accepted by Upsert.
const MaxLabelLength = 64

// Service implements find-or-create and listing over every taxonomy kind.
type Service struct {
	repos  map[Kind]Repository
	logger zerolog.Logger
}

func NewService(repos map[Kind]Repository, logger zerolog.Logger) *Service {
	return &Service{repos: repos, logger: logger.With().Str("service", "taxonomy").Logger()}
}

func (s *Service) repo(kind Kind) (Repository, error) {
	r, ok := s.repos[kind]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown taxonomy %q", kind))
	}
	return r, nil
}

// Upsert returns the record whose canonical value matches label, creating it when absent.
// An existing record is returned unchanged even if label differs in casing or spacing.
// Two callers racing on the same new value both end up with the single stored record.
func (s *Service) Upsert(ctx context.Context, kind Kind, label string) (*models.TaggedRecord, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, apperr.Validation("label is required")
	}
	if len(label) > MaxLabelLength {
		return nil, apperr.Validation(fmt.Sprintf("label must be at most %d characters", MaxLabelLength))
	}
	value := Canonicalize(label)

	existing, err := repo.FindByValue(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, value, err)
	}
	if existing != nil {
		return existing, nil
	}

	rec := &models.TaggedRecord{Value: value, Label: label, Archived: false, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, rec); err != nil {
		if !errors.Is(err, apperr.ErrDuplicateKey) {
			return nil, fmt.Errorf("create %s %q: %w", kind, value, err)
		}
		// lost the race: the winner's record is authoritative
		winner, ferr := repo.FindByValue(ctx, value)
		if ferr != nil {
			return nil, fmt.Errorf("re-read %s %q: %w", kind, value, ferr)
		}
		if winner == nil {
			return nil, fmt.Errorf("re-read %s %q: %w", kind, value, err)
		}
		metrics.DuplicateKeyRecovered.WithLabelValues("taxonomy").Inc()
		s.logger.Debug().Str("kind", string(kind)).Str("value", value).Msg("duplicate create resolved to existing record")
		return winner, nil
	}

	metrics.TaxonomyCreated.WithLabelValues(string(kind)).Inc()
	s.logger.Info().Str("kind", string(kind)).Str("value", value).Msg("tagged record created")
	return rec, nil
}

// UpsertAll upserts every label and returns the distinct canonical values in input order.
func (s *Service) UpsertAll(ctx context.Context, kind Kind, labels []string) ([]string, error) {
	values := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		rec, err := s.Upsert(ctx, kind, l)
		if err != nil {
			return nil, err
		}
		if seen[rec.Value] {
			continue
		}
		seen[rec.Value] = true
		values = append(values, rec.Value)
	}
	return values, nil
}

// List returns the non-archived records of kind ordered by value.
func (s *Service) List(ctx context.Context, kind Kind) ([]*models.TaggedRecord, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	list, err := repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return list, nil
}

// Archive soft-deletes the record; it stops appearing in List but keeps its value reserved.
func (s *Service) Archive(ctx context.Context, kind Kind, value string) error {
	repo, err := s.repo(kind)
	if err != nil {
		return err
	}
	value = Canonicalize(value)
	if value == "" {
		return apperr.Validation("value is required")
	}
	if err := repo.SetArchived(ctx, value, true); err != nil {
		return err
	}
	s.logger.Info().Str("kind", string(kind)).Str("value", value).Msg("tagged record archived")
	return nil
}
