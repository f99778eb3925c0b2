package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fake repo for testing
type fakeRepo struct {
	mu    sync.Mutex
	store map[string]*Session
}

func (f *fakeRepo) Create(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store == nil {
		f.store = map[string]*Session{}
	}
	s.stamp(time.Now().UTC(), 0)
	f.store[s.RefreshToken] = s
	return nil
}
func (f *fakeRepo) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[refresh], nil
}
func (f *fakeRepo) Consume(ctx context.Context, refresh string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.store[refresh]
	delete(f.store, refresh)
	return s, nil
}
func (f *fakeRepo) DeleteByRefresh(ctx context.Context, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, refresh)
	return nil
}

func TestCreateAndValidateSession(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if r == "" {
		t.Fatalf("expected refresh token")
	}
	// validate
	sess, err := svc.ValidateRefresh(ctx, r)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if sess == nil || sess.UserID != "user-1" {
		t.Fatalf("unexpected session: %v", sess)
	}
	// delete
	if err := svc.DeleteRefresh(ctx, r); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	sess2, _ := svc.ValidateRefresh(ctx, r)
	if sess2 != nil {
		t.Fatalf("expected session removed")
	}
}

func TestRotate(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	first, err := svc.CreateSession(ctx, "user-2", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	next, sess, err := svc.Rotate(ctx, first, time.Hour)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if next == "" || next == first {
		t.Fatalf("expected a fresh refresh token, got %q", next)
	}
	if sess.UserID != "user-2" {
		t.Fatalf("unexpected session owner: %s", sess.UserID)
	}
	if old, _ := svc.ValidateRefresh(ctx, first); old != nil {
		t.Fatalf("old refresh token must not survive rotation")
	}
	// replaying the old token yields nothing
	again, sess2, err := svc.Rotate(ctx, first, time.Hour)
	if err != nil || again != "" || sess2 != nil {
		t.Fatalf("expected replay to be rejected, got %q %v %v", again, sess2, err)
	}
}

func TestValidateRefresh_Expired(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	_ = repo.Create(ctx, &Session{RefreshToken: "stale", UserID: "u", ExpiresAt: time.Now().UTC().Add(-time.Minute)})
	sess, err := svc.ValidateRefresh(ctx, "stale")
	if err != nil || sess != nil {
		t.Fatalf("expected expired session to be rejected, got %v %v", sess, err)
	}
	if _, ok := repo.store["stale"]; ok {
		t.Fatalf("expired session should be cleaned up")
	}
}

func TestRotate_ExpiredIsConsumed(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	_ = repo.Create(ctx, &Session{RefreshToken: "old", UserID: "u", ExpiresAt: time.Now().UTC().Add(-time.Second)})
	next, sess, err := svc.Rotate(ctx, "old", time.Hour)
	if err != nil || next != "" || sess != nil {
		t.Fatalf("expected expired token to be rejected, got %q %v %v", next, sess, err)
	}
	if len(repo.store) != 0 {
		t.Fatalf("expired session should not linger, have %d", len(repo.store))
	}
}

func TestRotate_ConcurrentReuseYieldsOneToken(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	first, err := svc.CreateSession(ctx, "user-3", time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _, err := svc.Rotate(ctx, first, time.Hour)
			if err == nil && next != "" {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one rotation to succeed, got %d", got)
	}
	if len(repo.store) != 1 {
		t.Fatalf("expected a single live session, have %d", len(repo.store))
	}
}

func TestSessionStampDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Session{}
	s.stamp(now, 0)
	if !s.CreatedAt.Equal(now) || !s.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	s = &Session{}
	s.stamp(now, time.Hour)
	if !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("ttl not applied: %v", s.ExpiresAt)
	}
	if s.Expired(now) || !s.Expired(now.Add(time.Hour)) {
		t.Fatalf("expiry boundary wrong for %v", s.ExpiresAt)
	}
}
