package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/database"
	"github.com/folio/folio-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string
	Bio       *string
	AvatarURL *string
	Topics    []string
	Expertise []string
}

// UserRepository defines persistence operations for users.
// Find* methods return nil, nil when no user matches. Create reports a unique-index
// collision (email, username, slug or sub) as apperr.ErrDuplicateKey.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindBySlug(ctx context.Context, slug string) (*models.User, error)
	FindBySub(ctx context.Context, sub string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.col.InsertOne(ctx, u)
	return database.Classify(err)
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &u, nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) FindBySlug(ctx context.Context, slug string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *MongoUserRepository) FindBySub(ctx context.Context, sub string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"sub": sub})
}

func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	if upd.AvatarURL != nil {
		set["avatarUrl"] = *upd.AvatarURL
	}
	if upd.Topics != nil {
		set["topics"] = upd.Topics
	}
	if upd.Expertise != nil {
		set["expertise"] = upd.Expertise
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, database.Classify(err)
	}
	if res.MatchedCount == 0 {
		return nil, apperr.NotFound("user", id)
	}
	return r.FindByID(ctx, id)
}

// MemoryUserRepository keeps users in process. It enforces the same unique keys as the
// Mongo indexes.
type MemoryUserRepository struct {
	mu   sync.RWMutex
	byID map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byID: make(map[string]models.User)}
}

func (m *MemoryUserRepository) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		switch {
		case existing.ID == u.ID:
			return fmt.Errorf("%w: id %q", apperr.ErrDuplicateKey, u.ID)
		case u.Email != "" && existing.Email == u.Email:
			return fmt.Errorf("%w: email %q", apperr.ErrDuplicateKey, u.Email)
		case existing.Username == u.Username:
			return fmt.Errorf("%w: username %q", apperr.ErrDuplicateKey, u.Username)
		case existing.Slug == u.Slug:
			return fmt.Errorf("%w: slug %q", apperr.ErrDuplicateKey, u.Slug)
		case u.Sub != "" && existing.Sub == u.Sub:
			return fmt.Errorf("%w: sub %q", apperr.ErrDuplicateKey, u.Sub)
		}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.byID[u.ID] = *u
	return nil
}

func (m *MemoryUserRepository) find(match func(u *models.User) bool) *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byID {
		if match(&u) {
			found := u
			return &found
		}
	}
	return nil
}

func (m *MemoryUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (m *MemoryUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username }), nil
}

func (m *MemoryUserRepository) FindBySlug(ctx context.Context, slug string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Slug == slug }), nil
}

func (m *MemoryUserRepository) FindBySub(ctx context.Context, sub string) (*models.User, error) {
	if sub == "" {
		return nil, nil
	}
	return m.find(func(u *models.User) bool { return u.Sub == sub }), nil
}

func (m *MemoryUserRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Topics != nil {
		u.Topics = upd.Topics
	}
	if upd.Expertise != nil {
		u.Expertise = upd.Expertise
	}
	u.UpdatedAt = time.Now().UTC()
	m.byID[id] = u
	return &u, nil
}
