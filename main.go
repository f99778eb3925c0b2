package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/handlers"
	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/database"
	"github.com/folio/folio-api/internal/entitlement"
	"github.com/folio/folio-api/internal/gallery"
	"github.com/folio/folio-api/internal/oidc"
	"github.com/folio/folio-api/internal/sessions"
	"github.com/folio/folio-api/internal/storage"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/folio/folio-api/internal/tokens"
	"github.com/folio/folio-api/internal/users"
	"github.com/folio/folio-api/pkg/logger"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/folio/folio-api/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

// mediaStore is what the gallery and the readiness probe need from the media host.
type mediaStore interface {
	gallery.MediaStore
	Ping(ctx context.Context) error
}

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}
	dev := cfg.Server.Environment == "development"
	logger.Infof("config loaded: env=%s keycloak=%v redis=%v minio=%v", cfg.Server.Environment, cfg.Keycloak.URL != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS(cfg.Server.AllowedOrigins...))

	// Redis backs refresh sessions, the access-token blacklist and the shared rate limiter.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
			_ = client.Close()
		} else {
			rdb = client
			defer func() { _ = rdb.Close() }()
			sessions.SetBlacklistClient(rdb)
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	mongoClient, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, func(attempt int, err error) {
		logger.Warnf("attempt %d/5: failed to connect to MongoDB: %v", attempt, err)
	})
	if err != nil {
		logger.Fatalf("could not connect to MongoDB: %v", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	db := mongoClient.Database(cfg.MongoDB.Database)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		logger.Fatalf("failed to ensure indexes: %v", err)
	}

	tax := taxonomy.NewService(map[taxonomy.Kind]taxonomy.Repository{
		taxonomy.KindTopic:     taxonomy.NewMongoRepository(db.Collection(database.TopicsCollection)),
		taxonomy.KindExpertise: taxonomy.NewMongoRepository(db.Collection(database.ExpertiseCollection)),
	}, logger.L())
	userSvc := users.NewService(users.NewMongoUserRepository(db.Collection(database.UsersCollection)), tax,
		cfg.Identity.SlugAttempts, cfg.Identity.SuggestionAttempts, logger.L())

	var sessionsSvc *sessions.Service
	if rdb != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(rdb, "session:", cfg.JWT.RefreshTokenTTL))
		logger.Infof("using Redis for session storage")
	} else {
		sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection(database.SessionsCollection), cfg.JWT.RefreshTokenTTL))
		logger.Infof("using MongoDB for session storage")
	}

	var media mediaStore
	switch {
	case cfg.MinIO.Endpoint != "":
		m, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Fatalf("failed to initialize media storage: %v", err)
		}
		media = m
	case dev:
		mem := storage.NewMemoryStorage(fmt.Sprintf("http://localhost:%s/media", cfg.Server.Port))
		r.GET("/media/*key", func(c *gin.Context) {
			b, ok := mem.Object(strings.TrimPrefix(c.Param("key"), "/"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.Data(http.StatusOK, http.DetectContentType(b), b)
		})
		logger.Warnf("MINIO_ENDPOINT not set; keeping gallery images in memory")
		media = mem
	default:
		logger.Fatalf("MINIO_ENDPOINT is required outside development")
	}
	gallerySvc := gallery.NewService(gallery.NewMongoRepository(db), media, cfg.Gallery, logger.L())

	// Bearer tokens are either our own access tokens or identity-provider tokens.
	var idp middleware.Verifier
	if cfg.Keycloak.Issuer() != "" && cfg.Keycloak.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			idp = ver
		}
	}
	if idp == nil && dev && strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		idp = oidc.NewInsecureVerifier()
	}
	verifier := middleware.FirstOf(tokens.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer), idp)
	requireAuth := middleware.AuthMiddleware(verifier, userSvc.ClaimsResolver(cfg.JWT.Issuer))

	handlers.NewAuthHandler(cfg, userSvc, sessionsSvc, idp).Register(r, requireAuth)
	handlers.NewLookupHandler(userSvc.Resolver(), tax, entitlement.NewService(userSvc)).Register(r, requireAuth)
	handlers.NewProfileHandler(userSvc).Register(r, requireAuth)
	handlers.NewGalleryHandler(gallerySvc, userSvc).Register(r, requireAuth)
	handlers.RegisterSwagger(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when the record store, Redis (if configured) and the media host answer
	r.GET("/ready", func(c *gin.Context) {
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{
			"mongo": mongoClient.Ping(pctx, nil) == nil,
			"media": media.Ping(pctx) == nil,
			"redis": cfg.Redis.Host == "" || (rdb != nil && rdb.Ping(pctx).Err() == nil),
			"oidc":  cfg.Keycloak.URL == "" || idp != nil,
		}
		status, code := "ready", http.StatusOK
		for _, ok := range deps {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting folio-api on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
