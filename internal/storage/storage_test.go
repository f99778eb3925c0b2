package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/folio/folio-api/internal/config"
	"github.com/stretchr/testify/require"
)

func TestImageExtension(t *testing.T) {
	ext, ok := ImageExtension("image/jpeg")
	require.True(t, ok)
	require.Equal(t, ".jpg", ext)

	ext, ok = ImageExtension("Image/PNG; charset=binary")
	require.True(t, ok)
	require.Equal(t, ".png", ext)

	for _, ct := range []string{"", "text/plain", "image/svg+xml", "application/octet-stream"} {
		_, ok := ImageExtension(ct)
		require.False(t, ok, ct)
	}
}

func TestImageKey(t *testing.T) {
	require.Equal(t, "users/u1/folders/f1/i1.webp", ImageKey("u1", "f1", "i1", ".webp"))
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage("http://media.local/")
	require.NoError(t, s.Put(ctx, "a/b.png", strings.NewReader("pixels"), 6, "image/png"))

	b, ok := s.Object("a/b.png")
	require.True(t, ok)
	require.Equal(t, "pixels", string(b))

	u, err := s.PresignedURL(ctx, "a/b.png")
	require.NoError(t, err)
	require.Equal(t, "http://media.local/a/b.png", u)

	require.NoError(t, s.Delete(ctx, "a/b.png"))
	require.NoError(t, s.Delete(ctx, "a/b.png"))
	require.Equal(t, 0, s.Len())
	_, err = s.PresignedURL(ctx, "a/b.png")
	require.Error(t, err)
}

func TestNewMinIOStorage_RequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), config.MinIOConfig{Bucket: "media"})
	require.Error(t, err)
}
