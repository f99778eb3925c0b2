package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/database"
	"github.com/folio/folio-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists tagged records of a single kind.
// Create must report a value collision as apperr.ErrDuplicateKey.
type Repository interface {
	FindByValue(ctx context.Context, value string) (*models.TaggedRecord, error)
	Create(ctx context.Context, rec *models.TaggedRecord) error
	ListActive(ctx context.Context) ([]*models.TaggedRecord, error)
	SetArchived(ctx context.Context, value string, archived bool) error
}

// MongoRepository implements Repository on one collection with a unique index on "value".
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// FindByValue returns nil, nil when no record exists.
func (r *MongoRepository) FindByValue(ctx context.Context, value string) (*models.TaggedRecord, error) {
	var rec models.TaggedRecord
	if err := r.col.FindOne(ctx, bson.M{"value": value}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &rec, nil
}

func (r *MongoRepository) Create(ctx context.Context, rec *models.TaggedRecord) error {
	_, err := r.col.InsertOne(ctx, rec)
	return database.Classify(err)
}

func (r *MongoRepository) ListActive(ctx context.Context) ([]*models.TaggedRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "value", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"archived": false}, opts)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer cur.Close(ctx)
	out := []*models.TaggedRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (r *MongoRepository) SetArchived(ctx context.Context, value string, archived bool) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"value": value}, bson.M{"$set": bson.M{"archived": archived}})
	if err != nil {
		return database.Classify(err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("tag", value)
	}
	return nil
}

// MemoryRepository is an in-process Repository used by tests and the seed tool's dry run.
// It enforces value uniqueness the way the Mongo index does.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]models.TaggedRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]models.TaggedRecord)}
}

func (m *MemoryRepository) FindByValue(ctx context.Context, value string) (*models.TaggedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.store[value]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryRepository) Create(ctx context.Context, rec *models.TaggedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[rec.Value]; ok {
		return fmt.Errorf("%w: value %q", apperr.ErrDuplicateKey, rec.Value)
	}
	m.store[rec.Value] = *rec
	return nil
}

func (m *MemoryRepository) ListActive(ctx context.Context) ([]*models.TaggedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.TaggedRecord, 0, len(m.store))
	for _, rec := range m.store {
		if rec.Archived {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (m *MemoryRepository) SetArchived(ctx context.Context, value string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.store[value]
	if !ok {
		return apperr.NotFound("tag", value)
	}
	rec.Archived = archived
	m.store[value] = rec
	return nil
}

// Count returns the number of stored records, archived included.
func (m *MemoryRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
