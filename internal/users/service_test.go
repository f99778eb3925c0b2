package users

import (
	"context"
	"sync"
	"testing"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *MemoryUserRepository, *taxonomy.MemoryRepository) {
	t.Helper()
	repo := NewMemoryUserRepository()
	topics := taxonomy.NewMemoryRepository()
	tags := taxonomy.NewService(map[taxonomy.Kind]taxonomy.Repository{
		taxonomy.KindTopic:     topics,
		taxonomy.KindExpertise: taxonomy.NewMemoryRepository(),
	}, zerolog.Nop())
	svc := NewService(repo, tags, 5, 5, zerolog.Nop())
	svc.cost = bcrypt.MinCost
	return svc, repo, topics
}

func TestRegister(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: " Jane.Doe@Example.com ", Username: "JaneDoe", Password: "s3cret-pass", Name: "Jane Doe"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "jane.doe@example.com", u.Email)
	assert.Equal(t, "janedoe", u.Username)
	assert.Regexp(t, `^janedo\d{4}$`, u.Slug)
	assert.Equal(t, models.PlanFree, u.Plan)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())

	stored, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, u.Slug, stored.Slug)
}

func TestRegister_Conflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "jane@example.com", Username: "jane", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "JANE@example.com", Username: "other", Password: "password1"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Register(ctx, RegisterInput{Email: "new@example.com", Username: "Jane", Password: "password1"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	cases := []RegisterInput{
		{Email: "not-an-email", Username: "jane", Password: "password1"},
		{Email: "jane@example.com", Username: "ja", Password: "password1"},
		{Email: "jane@example.com", Username: "jane doe", Password: "password1"},
		{Email: "jane@example.com", Username: "jane", Password: "short"},
	}
	for _, in := range cases {
		_, err := svc.Register(ctx, in)
		require.ErrorIs(t, err, apperr.ErrValidation, "%+v", in)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Username: "ada", Password: "analytical"})
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "ADA@example.com", "analytical")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)

	u, err = svc.Authenticate(ctx, "Ada", "analytical")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)

	_, err = svc.Authenticate(ctx, "ada", "wrong-password")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "nobody", "analytical")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpsertFromClaims(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	claims := map[string]interface{}{
		"sub":   "sub-123",
		"email": "X@example.com",
		"name":  "X User",
	}

	u, err := svc.UpsertFromClaims(ctx, claims)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "sub-123", u.Sub)
	assert.Equal(t, "x@example.com", u.Email)
	assert.Equal(t, "X User", u.Name)
	assert.NotEmpty(t, u.Username)
	assert.Regexp(t, `^x\d{4}$`, u.Slug)

	again, err := svc.UpsertFromClaims(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	// missing sub => nil
	u2, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"})
	require.NoError(t, err)
	require.Nil(t, u2)
}

func TestUpsertFromClaims_PreferredUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	u, err := svc.UpsertFromClaims(context.Background(), map[string]interface{}{
		"sub":                "kc-1",
		"preferred_username": "Grace Hopper",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace-hopper", u.Username)
	assert.Regexp(t, `^[a-z0-9]{8}$`, u.Slug)
}

func TestGetBySlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Username: "ada", Password: "analytical"})
	require.NoError(t, err)

	u, err := svc.GetBySlug(ctx, reg.Slug)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)

	_, err = svc.GetBySlug(ctx, "nope0000")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateProfile_CanonicalizesTags(t *testing.T) {
	svc, _, topics := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Username: "ada", Password: "analytical"})
	require.NoError(t, err)

	bio := "  Writes programs for engines.  "
	u, err := svc.UpdateProfile(ctx, reg.ID, ProfileInput{
		Bio:       &bio,
		Topics:    []string{"Machine Learning", "machine learning", "Film Photography"},
		Expertise: []string{"Go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Writes programs for engines.", u.Bio)
	assert.Equal(t, []string{"machine-learning", "film-photography"}, u.Topics)
	assert.Equal(t, []string{"go"}, u.Expertise)
	assert.Equal(t, 2, topics.Count())

	// untouched fields survive a partial update
	name := "Ada Lovelace"
	u, err = svc.UpdateProfile(ctx, reg.ID, ProfileInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.Name)
	assert.Equal(t, []string{"machine-learning", "film-photography"}, u.Topics)

	_, err = svc.UpdateProfile(ctx, "missing", ProfileInput{Name: &name})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.UpdateProfile(ctx, reg.ID, ProfileInput{Topics: []string{"  "}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

// racingUsers lets every caller miss the initial FindBySub, so concurrent first logins
// for one subject all reach Create.
type racingUsers struct {
	*MemoryUserRepository
	mu      sync.Mutex
	misses  int
	callers int
	arrived sync.WaitGroup
}

func (r *racingUsers) FindBySub(ctx context.Context, sub string) (*models.User, error) {
	r.mu.Lock()
	n := r.misses
	r.misses++
	r.mu.Unlock()
	if n < r.callers {
		r.arrived.Done()
		r.arrived.Wait()
		return nil, nil
	}
	return r.MemoryUserRepository.FindBySub(ctx, sub)
}

func TestUpsertFromClaims_ConcurrentFirstLogin(t *testing.T) {
	const callers = 4
	repo := &racingUsers{MemoryUserRepository: NewMemoryUserRepository(), callers: callers}
	repo.arrived.Add(callers)
	svc := NewService(repo, nil, 5, 5, zerolog.Nop())

	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := svc.UpsertFromClaims(context.Background(), map[string]interface{}{"sub": "same-sub"})
			errs[i] = err
			if u != nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestClaimsResolver(t *testing.T) {
	svc, _, _ := newTestService(t)
	resolve := svc.ClaimsResolver("folio-api")
	ctx := context.Background()

	id, err := resolve(ctx, map[string]interface{}{"iss": "folio-api", "sub": "local-id"})
	require.NoError(t, err)
	assert.Equal(t, "local-id", id)

	id, err = resolve(ctx, map[string]interface{}{"iss": "http://kc/realms/folio", "sub": "kc-sub", "email": "kc@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	again, err := resolve(ctx, map[string]interface{}{"iss": "http://kc/realms/folio", "sub": "kc-sub"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
