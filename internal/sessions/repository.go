package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/folio/folio-api/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository persists refresh sessions. Lookups return nil, nil for unknown tokens.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByRefresh(ctx context.Context, refresh string) (*Session, error)
	// Consume removes the session and returns it in one step, so a refresh token is
	// handed out to at most one caller.
	Consume(ctx context.Context, refresh string) (*Session, error)
	DeleteByRefresh(ctx context.Context, refresh string) error
}

// MongoRepository stores sessions in the sessions collection. The TTL index on expiresAt
// (database.EnsureIndexes) removes stale documents server-side.
type MongoRepository struct {
	col *mongo.Collection
	ttl time.Duration
}

// NewMongoRepository builds a MongoRepository. ttl is the lifetime given to sessions
// created without an expiry; zero means DefaultTTL.
func NewMongoRepository(col *mongo.Collection, ttl time.Duration) *MongoRepository {
	return &MongoRepository{col: col, ttl: ttl}
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	s.stamp(time.Now().UTC(), r.ttl)
	_, err := r.col.InsertOne(ctx, s)
	return database.Classify(err)
}

func (r *MongoRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	return r.decode(r.col.FindOne(ctx, bson.M{"refreshToken": refresh}))
}

func (r *MongoRepository) Consume(ctx context.Context, refresh string) (*Session, error) {
	return r.decode(r.col.FindOneAndDelete(ctx, bson.M{"refreshToken": refresh}))
}

func (r *MongoRepository) decode(res *mongo.SingleResult) (*Session, error) {
	var s Session
	if err := res.Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"refreshToken": refresh})
	return database.Classify(err)
}
