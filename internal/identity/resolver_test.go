package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	usernames map[string]bool
	slugs     map[string]bool
	err       error
	calls     int
}

func (f *fakeLookup) UsernameTaken(ctx context.Context, username string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.usernames[username], nil
}

func (f *fakeLookup) SlugTaken(ctx context.Context, slug string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.slugs[slug], nil
}

// sequence returns a deterministic intN that yields values in order (modulo n).
func sequence(vals ...int) func(int) int {
	i := 0
	return func(n int) int {
		v := vals[i%len(vals)]
		i++
		return v % n
	}
}

func newResolver(l *fakeLookup) *Resolver {
	return NewResolver(l, 3, 3, zerolog.Nop())
}

func TestCheckAvailability_TooShort(t *testing.T) {
	r := newResolver(&fakeLookup{})
	for _, c := range []string{"", "a", "ab", "  ab  "} {
		_, err := r.CheckAvailability(context.Background(), c)
		require.ErrorIs(t, err, apperr.ErrValidation, "candidate %q", c)
	}
}

func TestCheckAvailability_RejectsWhatSignupRejects(t *testing.T) {
	l := &fakeLookup{}
	r := newResolver(l)
	for _, c := range []string{"a b", "jane!", "名前です", strings.Repeat("x", MaxUsernameLength+1)} {
		_, err := r.CheckAvailability(context.Background(), c)
		require.ErrorIs(t, err, apperr.ErrValidation, "candidate %q", c)
	}
	assert.Zero(t, l.calls, "invalid candidates never reach the store")
}

func TestCheckAvailability_LongNameSuggestionStaysValid(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz012345"
	require.Len(t, long, MaxUsernameLength)
	r := newResolver(&fakeLookup{usernames: map[string]bool{long: true}})
	r.intN = sequence(861)

	got, err := r.CheckAvailability(context.Background(), long)
	require.NoError(t, err)
	require.NotNil(t, got.Suggestion)
	assert.Equal(t, long[:MaxUsernameLength-4]+"-861", *got.Suggestion)
	assert.NoError(t, ValidateUsername(*got.Suggestion))
}

func TestCheckAvailability_Free(t *testing.T) {
	r := newResolver(&fakeLookup{})
	got, err := r.CheckAvailability(context.Background(), "jane")
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Nil(t, got.Suggestion)
}

func TestCheckAvailability_TakenSuggestsSuffix(t *testing.T) {
	l := &fakeLookup{usernames: map[string]bool{"jane": true}}
	r := newResolver(l)
	r.intN = sequence(42)

	got, err := r.CheckAvailability(context.Background(), "Jane")
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.NotNil(t, got.Suggestion)
	assert.Equal(t, "jane-42", *got.Suggestion)
}

func TestCheckAvailability_SuggestionIsRechecked(t *testing.T) {
	l := &fakeLookup{usernames: map[string]bool{"jane": true, "jane-7": true}}
	r := newResolver(l)
	r.intN = sequence(7, 8)

	got, err := r.CheckAvailability(context.Background(), "jane")
	require.NoError(t, err)
	assert.Equal(t, "jane-8", *got.Suggestion)
}

func TestCheckAvailability_SuggestionFormat(t *testing.T) {
	l := &fakeLookup{usernames: map[string]bool{"jane": true}}
	r := newResolver(l)
	got, err := r.CheckAvailability(context.Background(), "jane")
	require.NoError(t, err)
	assert.Regexp(t, `^jane-\d{1,3}$`, *got.Suggestion)
}

func TestCheckAvailability_StoreError(t *testing.T) {
	r := newResolver(&fakeLookup{err: apperr.ErrStoreUnavailable})
	_, err := r.CheckAvailability(context.Background(), "jane")
	require.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestGenerateSlug_FromEmail(t *testing.T) {
	r := newResolver(&fakeLookup{})
	pattern := regexp.MustCompile(`^janedo\d{4}$`)
	for i := 0; i < 200; i++ {
		s := r.GenerateSlug("Jane.Doe@Example.com")
		require.Regexp(t, pattern, s)
		n := s[len("janedo"):]
		require.True(t, n >= "1000" && n <= "9999", n)
	}
}

func TestGenerateSlug_Bounds(t *testing.T) {
	r := newResolver(&fakeLookup{})
	r.intN = sequence(0)
	assert.Equal(t, "al1000", r.GenerateSlug("a.l@x.io"))
	r.intN = sequence(8999)
	assert.Equal(t, "al9999", r.GenerateSlug("a.l@x.io"))
}

func TestGenerateSlug_Random(t *testing.T) {
	r := newResolver(&fakeLookup{})
	pattern := regexp.MustCompile(`^[a-z0-9]{8}$`)
	for i := 0; i < 200; i++ {
		require.Regexp(t, pattern, r.GenerateSlug(""))
	}
	// no alphanumerics in the local part falls back to the random form
	require.Regexp(t, pattern, r.GenerateSlug("...@example.com"))
}

func TestAllocateSlug_RetriesOnCollision(t *testing.T) {
	l := &fakeLookup{slugs: map[string]bool{"janedo1000": true}}
	r := newResolver(l)
	r.intN = sequence(0, 1)

	slug, err := r.AllocateSlug(context.Background(), "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "janedo1001", slug)
}

func TestAllocateSlug_Exhausted(t *testing.T) {
	l := &fakeLookup{slugs: map[string]bool{"janedo1000": true}}
	r := newResolver(l)
	r.intN = sequence(0)

	_, err := r.AllocateSlug(context.Background(), "jane.doe@example.com")
	require.Error(t, err)
	assert.Equal(t, 3, l.calls)
}

func TestAllocateUsername(t *testing.T) {
	l := &fakeLookup{usernames: map[string]bool{"jane.doe": true, "janedoe": true}}
	r := newResolver(l)
	r.intN = sequence(5)

	u, err := r.AllocateUsername(context.Background(), "Jane.Doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "janedoe-5", u)

	u, err = r.AllocateUsername(context.Background(), "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "ada-lovelace", u)

	u, err = r.AllocateUsername(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "user-"), u)
	require.NoError(t, ValidateUsername(u))
}

func TestValidateUsername(t *testing.T) {
	require.NoError(t, ValidateUsername("jane_doe-2"))
	require.ErrorIs(t, ValidateUsername("ja"), apperr.ErrValidation)
	require.ErrorIs(t, ValidateUsername("jane doe"), apperr.ErrValidation)
	require.ErrorIs(t, ValidateUsername(strings.Repeat("a", 33)), apperr.ErrValidation)
	require.False(t, errors.Is(ValidateUsername("jane"), apperr.ErrValidation))
}

func TestCanonicalEmail(t *testing.T) {
	assert.Equal(t, "jane.doe@example.com", CanonicalEmail("  Jane.Doe@Example.COM "))
}
