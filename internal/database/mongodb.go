package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/folio/folio-api/internal/apperr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the service.
const (
	UsersCollection     = "users"
	SessionsCollection  = "sessions"
	TopicsCollection    = "topics"
	ExpertiseCollection = "expertise"
	FoldersCollection   = "folders"
	ImagesCollection    = "images"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w: %v", apperr.ErrStoreUnavailable, err)
	}
	return client, nil
}

// ConnectWithRetry retries ConnectMongo with exponential backoff to tolerate startup races.
func ConnectWithRetry(ctx context.Context, uri string, timeout time.Duration, attempts int, onRetry func(attempt int, err error)) (*mongo.Client, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := ConnectMongo(ctx, uri, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func unique(keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
}

// Indexes lists every index the service relies on, keyed by collection.
// The unique indexes are what turns concurrent check-then-create into ErrDuplicateKey.
var Indexes = map[string][]mongo.IndexModel{
	UsersCollection: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		unique(bson.D{{Key: "username", Value: 1}}),
		unique(bson.D{{Key: "slug", Value: 1}}),
		{Keys: bson.D{{Key: "sub", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	},
	SessionsCollection: {
		unique(bson.D{{Key: "refreshToken", Value: 1}}),
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	},
	TopicsCollection:    {unique(bson.D{{Key: "value", Value: 1}})},
	ExpertiseCollection: {unique(bson.D{{Key: "value", Value: 1}})},
	FoldersCollection:   {{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "_id", Value: 1}}}},
	ImagesCollection:    {{Keys: bson.D{{Key: "folderId", Value: 1}, {Key: "_id", Value: 1}}}},
}

var (
	indexOnce sync.Once
	indexErr  error
)

// EnsureIndexes registers all indexes once per process. Later calls return the first result.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexOnce.Do(func() {
		for name, models := range Indexes {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
				indexErr = fmt.Errorf("ensure indexes on %s: %w", name, err)
				return
			}
		}
	})
	return indexErr
}

// Classify converts driver errors into apperr kinds so services never inspect driver types.
// mongo.ErrNoDocuments is returned untouched; repositories decide what "absent" means.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return err
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", apperr.ErrDuplicateKey, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return err
}
