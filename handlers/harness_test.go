package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/entitlement"
	"github.com/folio/folio-api/internal/gallery"
	"github.com/folio/folio-api/internal/sessions"
	"github.com/folio/folio-api/internal/storage"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/folio/folio-api/internal/tokens"
	"github.com/folio/folio-api/internal/users"
	"github.com/folio/folio-api/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testIssuer = "folio-api"

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
	redis  *mr.Miniredis
	users  *users.Service
	media  *storage.MemoryStorage
}

// newTestServer wires every route against in-memory stores and miniredis, the way main
// does against Mongo, Redis and MinIO.
func newTestServer(t *testing.T, idTokens middleware.Verifier, configure ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.JWT.Secret = "handler-test-secret-32-bytes-xxxx"
	cfg.JWT.Issuer = testIssuer
	for _, fn := range configure {
		fn(cfg)
	}

	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	sessions.SetBlacklistClient(client)
	t.Cleanup(func() { sessions.SetBlacklistClient(nil) })

	tax := taxonomy.NewService(map[taxonomy.Kind]taxonomy.Repository{
		taxonomy.KindTopic:     taxonomy.NewMemoryRepository(),
		taxonomy.KindExpertise: taxonomy.NewMemoryRepository(),
	}, zerolog.Nop())
	userSvc := users.NewService(users.NewMemoryUserRepository(), tax, 5, 5, zerolog.Nop())
	sessSvc := sessions.NewService(sessions.NewRedisRepository(client, "session:", cfg.JWT.RefreshTokenTTL))
	media := storage.NewMemoryStorage("http://media.test")
	gal := gallery.NewService(gallery.NewMemoryRepository(), media, config.GalleryConfig{MaxUploadBytes: 1024}, zerolog.Nop())

	ver := middleware.FirstOf(tokens.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer), idTokens)
	requireAuth := middleware.AuthMiddleware(ver, userSvc.ClaimsResolver(cfg.JWT.Issuer))

	r := gin.New()
	r.Use(middleware.CORS())
	NewAuthHandler(cfg, userSvc, sessSvc, idTokens).Register(r, requireAuth)
	NewLookupHandler(userSvc.Resolver(), tax, entitlement.NewService(userSvc)).Register(r, requireAuth)
	NewProfileHandler(userSvc).Register(r, requireAuth)
	NewGalleryHandler(gal, userSvc).Register(r, requireAuth)

	return &testServer{router: r, cfg: cfg, redis: m, users: userSvc, media: media}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type authResponse struct {
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
	ExpiresIn    int                    `json:"expiresIn"`
	User         map[string]interface{} `json:"user"`
}

// signup registers username with a derived email and returns the token pair.
func (s *testServer) signup(t *testing.T, username string) authResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/signup", gin.H{
		"email":    username + "@example.com",
		"username": username,
		"password": "correct-horse",
		"name":     "Test " + username,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
