package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/database"
	"github.com/folio/folio-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists folders and image metadata. Find* return nil, nil when absent.
// List* return up to limit records with id > after, ascending by id.
type Repository interface {
	CreateFolder(ctx context.Context, f *models.Folder) error
	FindFolder(ctx context.Context, id string) (*models.Folder, error)
	ListFolders(ctx context.Context, ownerID, after string, limit int) ([]*models.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	IncImageCount(ctx context.Context, folderID string, delta int) error
	SetCover(ctx context.Context, folderID, key string) error

	CreateImage(ctx context.Context, img *models.Image) error
	FindImage(ctx context.Context, id string) (*models.Image, error)
	ListImages(ctx context.Context, folderID, after string, limit int) ([]*models.Image, error)
	FolderImages(ctx context.Context, folderID string) ([]*models.Image, error)
	DeleteImage(ctx context.Context, id string) error
	DeleteFolderImages(ctx context.Context, folderID string) error
}

type MongoRepository struct {
	folders *mongo.Collection
	images  *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		folders: db.Collection(database.FoldersCollection),
		images:  db.Collection(database.ImagesCollection),
	}
}

func pageFilter(field, value, after string) bson.M {
	f := bson.M{field: value}
	if after != "" {
		f["_id"] = bson.M{"$gt": after}
	}
	return f
}

func pageOptions(limit int) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
}

func (r *MongoRepository) CreateFolder(ctx context.Context, f *models.Folder) error {
	_, err := r.folders.InsertOne(ctx, f)
	return database.Classify(err)
}

func (r *MongoRepository) FindFolder(ctx context.Context, id string) (*models.Folder, error) {
	var f models.Folder
	if err := r.folders.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &f, nil
}

func (r *MongoRepository) ListFolders(ctx context.Context, ownerID, after string, limit int) ([]*models.Folder, error) {
	cur, err := r.folders.Find(ctx, pageFilter("ownerId", ownerID, after), pageOptions(limit))
	if err != nil {
		return nil, database.Classify(err)
	}
	defer cur.Close(ctx)
	out := []*models.Folder{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (r *MongoRepository) DeleteFolder(ctx context.Context, id string) error {
	res, err := r.folders.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return database.Classify(err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("folder", id)
	}
	return nil
}

func (r *MongoRepository) IncImageCount(ctx context.Context, folderID string, delta int) error {
	_, err := r.folders.UpdateOne(ctx, bson.M{"_id": folderID}, bson.M{
		"$inc": bson.M{"imageCount": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	return database.Classify(err)
}

func (r *MongoRepository) SetCover(ctx context.Context, folderID, key string) error {
	_, err := r.folders.UpdateOne(ctx, bson.M{"_id": folderID}, bson.M{"$set": bson.M{"coverKey": key}})
	return database.Classify(err)
}

func (r *MongoRepository) CreateImage(ctx context.Context, img *models.Image) error {
	_, err := r.images.InsertOne(ctx, img)
	return database.Classify(err)
}

func (r *MongoRepository) FindImage(ctx context.Context, id string) (*models.Image, error) {
	var img models.Image
	if err := r.images.FindOne(ctx, bson.M{"_id": id}).Decode(&img); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, database.Classify(err)
	}
	return &img, nil
}

func (r *MongoRepository) ListImages(ctx context.Context, folderID, after string, limit int) ([]*models.Image, error) {
	cur, err := r.images.Find(ctx, pageFilter("folderId", folderID, after), pageOptions(limit))
	if err != nil {
		return nil, database.Classify(err)
	}
	defer cur.Close(ctx)
	out := []*models.Image{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (r *MongoRepository) FolderImages(ctx context.Context, folderID string) ([]*models.Image, error) {
	cur, err := r.images.Find(ctx, bson.M{"folderId": folderID})
	if err != nil {
		return nil, database.Classify(err)
	}
	defer cur.Close(ctx)
	out := []*models.Image{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

func (r *MongoRepository) DeleteImage(ctx context.Context, id string) error {
	res, err := r.images.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return database.Classify(err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("image", id)
	}
	return nil
}

func (r *MongoRepository) DeleteFolderImages(ctx context.Context, folderID string) error {
	_, err := r.images.DeleteMany(ctx, bson.M{"folderId": folderID})
	return database.Classify(err)
}

// MemoryRepository is the in-process Repository used by tests and local development.
type MemoryRepository struct {
	mu      sync.RWMutex
	folders map[string]models.Folder
	images  map[string]models.Image
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{folders: map[string]models.Folder{}, images: map[string]models.Image{}}
}

func (m *MemoryRepository) CreateFolder(ctx context.Context, f *models.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[f.ID]; ok {
		return fmt.Errorf("%w: folder %q", apperr.ErrDuplicateKey, f.ID)
	}
	m.folders[f.ID] = *f
	return nil
}

func (m *MemoryRepository) FindFolder(ctx context.Context, id string) (*models.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *MemoryRepository) ListFolders(ctx context.Context, ownerID, after string, limit int) ([]*models.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Folder{}
	for _, f := range m.folders {
		if f.OwnerID == ownerID && f.ID > after {
			f := f
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) DeleteFolder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[id]; !ok {
		return apperr.NotFound("folder", id)
	}
	delete(m.folders, id)
	return nil
}

func (m *MemoryRepository) IncImageCount(ctx context.Context, folderID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[folderID]
	if !ok {
		return nil
	}
	f.ImageCount += delta
	f.UpdatedAt = time.Now().UTC()
	m.folders[folderID] = f
	return nil
}

func (m *MemoryRepository) SetCover(ctx context.Context, folderID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[folderID]
	if !ok {
		return nil
	}
	f.CoverKey = key
	m.folders[folderID] = f
	return nil
}

func (m *MemoryRepository) CreateImage(ctx context.Context, img *models.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[img.ID]; ok {
		return fmt.Errorf("%w: image %q", apperr.ErrDuplicateKey, img.ID)
	}
	m.images[img.ID] = *img
	return nil
}

func (m *MemoryRepository) FindImage(ctx context.Context, id string) (*models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return nil, nil
	}
	return &img, nil
}

func (m *MemoryRepository) ListImages(ctx context.Context, folderID, after string, limit int) ([]*models.Image, error) {
	all, _ := m.FolderImages(ctx, folderID)
	out := []*models.Image{}
	for _, img := range all {
		if img.ID > after {
			out = append(out, img)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FolderImages returns every image in the folder ordered by id.
func (m *MemoryRepository) FolderImages(ctx context.Context, folderID string) ([]*models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.Image{}
	for _, img := range m.images {
		if img.FolderID == folderID {
			img := img
			out = append(out, &img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) DeleteImage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[id]; !ok {
		return apperr.NotFound("image", id)
	}
	delete(m.images, id)
	return nil
}

func (m *MemoryRepository) DeleteFolderImages(ctx context.Context, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, img := range m.images {
		if img.FolderID == folderID {
			delete(m.images, id)
		}
	}
	return nil
}
