package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each session as JSON under <prefix><refreshToken>, expiring with
// the session itself.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRepository creates a Redis-based session repository. An empty prefix means
// "session:"; a zero ttl means DefaultTTL for sessions created without an expiry.
func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) key(refresh string) string {
	return r.prefix + refresh
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	s.stamp(now, r.ttl)
	if s.Expired(now) {
		return fmt.Errorf("session for %s already expired", s.UserID)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, r.key(s.RefreshToken), b, s.ExpiresAt.Sub(now)).Err()
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	return r.decode(r.client.Get(ctx, r.key(refresh)))
}

// Consume uses GETDEL: of two concurrent callers only one sees the value.
func (r *RedisRepository) Consume(ctx context.Context, refresh string) (*Session, error) {
	return r.decode(r.client.GetDel(ctx, r.key(refresh)))
}

func (r *RedisRepository) decode(cmd *redis.StringCmd) (*Session, error) {
	b, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	return r.client.Del(ctx, r.key(refresh)).Err()
}
