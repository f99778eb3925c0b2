// Package gallery manages a user's image folders. Metadata lives in the record store and
// image bytes on the media host.
package gallery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/internal/storage"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxFolderNameLength  = 100
	MaxDescriptionLength = 500
	MaxCaptionLength     = 300
)

var timeNow = func() time.Time { return time.Now().UTC() }

// MediaStore holds image bytes.
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Page is one slice of a cursor-paginated listing. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// FolderView is a folder as returned to clients.
type FolderView struct {
	*models.Folder
	CoverURL string `json:"coverUrl,omitempty"`
}

// ImageView is image metadata plus a time-limited URL for the bytes.
type ImageView struct {
	*models.Image
	URL string `json:"url"`
}

// FolderInput creates a folder.
type FolderInput struct {
	Name        string
	Description string
}

// Upload is an image to add to a folder. Size must be the exact byte count of Body.
type Upload struct {
	Body        io.Reader
	Size        int64
	ContentType string
	Caption     string
}

type Service struct {
	repo   Repository
	media  MediaStore
	limits config.GalleryConfig
	logger zerolog.Logger
}

func NewService(repo Repository, media MediaStore, limits config.GalleryConfig, logger zerolog.Logger) *Service {
	if limits.DefaultPageSize <= 0 {
		limits.DefaultPageSize = 20
	}
	if limits.MaxPageSize < limits.DefaultPageSize {
		limits.MaxPageSize = limits.DefaultPageSize
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 10 << 20
	}
	return &Service{
		repo:   repo,
		media:  media,
		limits: limits,
		logger: logger.With().Str("service", "gallery").Logger(),
	}
}

// MaxUploadBytes is the largest accepted image.
func (s *Service) MaxUploadBytes() int64 { return s.limits.MaxUploadBytes }

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) pageSize(limit int) int {
	if limit <= 0 {
		return s.limits.DefaultPageSize
	}
	return min(limit, s.limits.MaxPageSize)
}

// ParseCursor accepts "" or an id previously returned as nextCursor.
func ParseCursor(cursor string) (string, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return "", nil
	}
	if _, err := uuid.Parse(cursor); err != nil {
		return "", apperr.Validation("invalid cursor")
	}
	return strings.ToLower(cursor), nil
}

func (s *Service) CreateFolder(ctx context.Context, ownerID string, in FolderInput) (*FolderView, error) {
	if ownerID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("folder name is required")
	}
	if utf8.RuneCountInString(name) > MaxFolderNameLength {
		return nil, apperr.Validation(fmt.Sprintf("folder name must be at most %d characters", MaxFolderNameLength))
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return nil, apperr.Validation(fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}
	now := timeNow()
	f := &models.Folder{
		ID:          newID(),
		OwnerID:     ownerID,
		Name:        name,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	s.logger.Info().Str("owner_id", ownerID).Str("folder_id", f.ID).Msg("folder created")
	return &FolderView{Folder: f}, nil
}

// ListFolders pages through ownerID's folders oldest first.
func (s *Service) ListFolders(ctx context.Context, ownerID, cursor string, limit int) (*Page[FolderView], error) {
	after, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}
	n := s.pageSize(limit)
	folders, err := s.repo.ListFolders(ctx, ownerID, after, n+1)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	page := &Page[FolderView]{Items: []FolderView{}}
	if len(folders) > n {
		folders = folders[:n]
		page.NextCursor = folders[n-1].ID
	}
	for _, f := range folders {
		page.Items = append(page.Items, s.folderView(ctx, f))
	}
	return page, nil
}

func (s *Service) folderView(ctx context.Context, f *models.Folder) FolderView {
	v := FolderView{Folder: f}
	if f.CoverKey != "" {
		u, err := s.media.PresignedURL(ctx, f.CoverKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("folder_id", f.ID).Msg("cover url unavailable")
		}
		v.CoverURL = u
	}
	return v
}

func (s *Service) loadFolder(ctx context.Context, folderID string) (*models.Folder, error) {
	f, err := s.repo.FindFolder(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("load folder: %w", err)
	}
	if f == nil {
		return nil, apperr.NotFound("folder", folderID)
	}
	return f, nil
}

func (s *Service) ownedFolder(ctx context.Context, callerID, folderID string) (*models.Folder, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	f, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != callerID {
		return nil, apperr.Forbidden("folder belongs to another user")
	}
	return f, nil
}

// GetFolder returns any folder by id; galleries are public.
func (s *Service) GetFolder(ctx context.Context, folderID string) (*FolderView, error) {
	f, err := s.loadFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	v := s.folderView(ctx, f)
	return &v, nil
}

// DeleteFolder removes the folder, its image records and their stored bytes. Owner only.
func (s *Service) DeleteFolder(ctx context.Context, callerID, folderID string) error {
	f, err := s.ownedFolder(ctx, callerID, folderID)
	if err != nil {
		return err
	}
	images, err := s.repo.FolderImages(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("list folder images: %w", err)
	}
	for _, img := range images {
		if err := s.media.Delete(ctx, img.Key); err != nil {
			s.logger.Warn().Err(err).Str("key", img.Key).Msg("orphaned media object")
		}
	}
	if err := s.repo.DeleteFolderImages(ctx, f.ID); err != nil {
		return fmt.Errorf("delete folder images: %w", err)
	}
	if err := s.repo.DeleteFolder(ctx, f.ID); err != nil {
		return err
	}
	s.logger.Info().Str("folder_id", f.ID).Int("images", len(images)).Msg("folder deleted")
	return nil
}

// AddImage stores an upload in a folder the caller owns. The first image becomes the cover.
func (s *Service) AddImage(ctx context.Context, callerID, folderID string, up Upload) (*ImageView, error) {
	f, err := s.ownedFolder(ctx, callerID, folderID)
	if err != nil {
		return nil, err
	}
	ext, ok := storage.ImageExtension(up.ContentType)
	if !ok {
		metrics.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation("only jpeg, png, gif, webp and avif images are accepted")
	}
	if up.Size <= 0 {
		metrics.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation("image is empty")
	}
	if up.Size > s.limits.MaxUploadBytes {
		metrics.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation(fmt.Sprintf("image exceeds %d bytes", s.limits.MaxUploadBytes))
	}
	caption := strings.TrimSpace(up.Caption)
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		metrics.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, apperr.Validation(fmt.Sprintf("caption must be at most %d characters", MaxCaptionLength))
	}

	img := &models.Image{
		ID:          newID(),
		FolderID:    f.ID,
		OwnerID:     f.OwnerID,
		ContentType: up.ContentType,
		Size:        up.Size,
		Caption:     caption,
		CreatedAt:   timeNow(),
	}
	img.Key = storage.ImageKey(f.OwnerID, f.ID, img.ID, ext)

	if err := s.media.Put(ctx, img.Key, up.Body, up.Size, up.ContentType); err != nil {
		metrics.ImageUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store image: %w", err)
	}
	if err := s.repo.CreateImage(ctx, img); err != nil {
		metrics.ImageUploads.WithLabelValues("error").Inc()
		if derr := s.media.Delete(ctx, img.Key); derr != nil {
			s.logger.Warn().Err(derr).Str("key", img.Key).Msg("orphaned media object")
		}
		return nil, fmt.Errorf("record image: %w", err)
	}
	if err := s.repo.IncImageCount(ctx, f.ID, 1); err != nil {
		s.logger.Warn().Err(err).Str("folder_id", f.ID).Msg("image count not updated")
	}
	if f.CoverKey == "" {
		if err := s.repo.SetCover(ctx, f.ID, img.Key); err != nil {
			s.logger.Warn().Err(err).Str("folder_id", f.ID).Msg("cover not set")
		}
	}
	metrics.ImageUploads.WithLabelValues("ok").Inc()

	url, err := s.media.PresignedURL(ctx, img.Key)
	if err != nil {
		return nil, fmt.Errorf("presign image: %w", err)
	}
	return &ImageView{Image: img, URL: url}, nil
}

// ListImages pages through a folder's images oldest first.
func (s *Service) ListImages(ctx context.Context, folderID, cursor string, limit int) (*Page[ImageView], error) {
	after, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadFolder(ctx, folderID); err != nil {
		return nil, err
	}
	n := s.pageSize(limit)
	images, err := s.repo.ListImages(ctx, folderID, after, n+1)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	page := &Page[ImageView]{Items: []ImageView{}}
	if len(images) > n {
		images = images[:n]
		page.NextCursor = images[n-1].ID
	}
	for _, img := range images {
		url, err := s.media.PresignedURL(ctx, img.Key)
		if err != nil {
			return nil, fmt.Errorf("presign image: %w", err)
		}
		page.Items = append(page.Items, ImageView{Image: img, URL: url})
	}
	return page, nil
}

// DeleteImage removes one image from a folder the caller owns.
func (s *Service) DeleteImage(ctx context.Context, callerID, folderID, imageID string) error {
	f, err := s.ownedFolder(ctx, callerID, folderID)
	if err != nil {
		return err
	}
	img, err := s.repo.FindImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	if img == nil || img.FolderID != f.ID {
		return apperr.NotFound("image", imageID)
	}
	if err := s.repo.DeleteImage(ctx, img.ID); err != nil {
		return err
	}
	if err := s.media.Delete(ctx, img.Key); err != nil {
		s.logger.Warn().Err(err).Str("key", img.Key).Msg("orphaned media object")
	}
	if err := s.repo.IncImageCount(ctx, f.ID, -1); err != nil {
		s.logger.Warn().Err(err).Str("folder_id", f.ID).Msg("image count not updated")
	}
	if f.CoverKey == img.Key {
		if err := s.repo.SetCover(ctx, f.ID, ""); err != nil {
			s.logger.Warn().Err(err).Str("folder_id", f.ID).Msg("cover not cleared")
		}
	}
	return nil
}
