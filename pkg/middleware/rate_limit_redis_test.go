package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimitMiddleware_Basic(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	lim := newRedisLimiter(client, 1, 0, time.Second) // 1 req/sec, no burst
	now := time.Unix(1_700_000_000, 0)
	lim.now = func() time.Time { return now }

	r := gin.New()
	r.Use(lim.handle)
	r.GET("/r", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	serve := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/r", nil))
		return w.Code
	}

	require.Equal(t, http.StatusOK, serve())
	// same window -> blocked
	require.Equal(t, http.StatusTooManyRequests, serve())

	// next window -> allowed again
	now = now.Add(2 * time.Second)
	m.FastForward(2 * time.Second)
	require.Equal(t, http.StatusOK, serve())
}

func TestRedisRateLimitMiddleware_KeysByUser(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(UserIDKey, c.GetHeader("X-Test-User"))
		c.Next()
	})
	r.Use(RedisRateLimitMiddleware(client, 1, 0, time.Hour))
	r.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve := func(user string) int {
		req := httptest.NewRequest("GET", "/r", nil)
		req.Header.Set("X-Test-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// each user gets its own counter
	require.Equal(t, http.StatusOK, serve("a"))
	require.Equal(t, http.StatusOK, serve("b"))
	require.Len(t, m.Keys(), 2)
}

func TestRedisRateLimitMiddleware_NilClientFallsBack(t *testing.T) {
	r := gin.New()
	r.Use(RedisRateLimitMiddleware(nil, 1, 1, time.Second))
	r.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/r", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
