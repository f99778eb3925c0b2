// Package identity derives and checks the user-facing identifiers: usernames and profile slugs.
package identity

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/rs/zerolog"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32

	slugPrefixLength = 6
	randomSlugLength = 8
	slugAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	nonAlnum      = regexp.MustCompile(`[^A-Za-z0-9]`)
	usernameChars = regexp.MustCompile(`^[a-z0-9_-]+$`)
	usernameStrip = regexp.MustCompile(`[^a-z0-9_-]`)
)

// Lookup answers existence questions against the user record store.
type Lookup interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// Availability is the answer to a username check. Suggestion is nil when the name is free.
type Availability struct {
	Available  bool    `json:"available"`
	Suggestion *string `json:"suggestion"`
}

// Resolver checks username availability and allocates unique slugs.
type Resolver struct {
	lookup             Lookup
	slugAttempts       int
	suggestionAttempts int
	intN               func(n int) int
	logger             zerolog.Logger
}

// NewResolver builds a Resolver. Attempt counts below one are treated as one.
func NewResolver(lookup Lookup, slugAttempts, suggestionAttempts int, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookup:             lookup,
		slugAttempts:       max(slugAttempts, 1),
		suggestionAttempts: max(suggestionAttempts, 1),
		intN:               rand.Intn,
		logger:             logger.With().Str("service", "identity").Logger(),
	}
}

// CanonicalEmail trims and lowercases an email address.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalUsername trims and lowercases a username candidate.
func CanonicalUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername enforces the stored username format on an already canonical name.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength {
		return apperr.Validation(fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if n > MaxUsernameLength {
		return apperr.Validation(fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	}
	if !usernameChars.MatchString(username) {
		return apperr.Validation("username may only contain lowercase letters, digits, '-' and '_'")
	}
	return nil
}

// CheckAvailability reports whether candidate is free and, when it is not, proposes
// candidate-N with N in [0,999]. Candidates that signup would reject are validation
// errors. Proposals are themselves checked; if every attempt collides the last proposal
// is returned unverified.
func (r *Resolver) CheckAvailability(ctx context.Context, candidate string) (*Availability, error) {
	candidate = CanonicalUsername(candidate)
	if err := ValidateUsername(candidate); err != nil {
		return nil, err
	}
	taken, err := r.lookup.UsernameTaken(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("check username %q: %w", candidate, err)
	}
	if !taken {
		metrics.AvailabilityChecks.WithLabelValues("available").Inc()
		return &Availability{Available: true}, nil
	}
	metrics.AvailabilityChecks.WithLabelValues("taken").Inc()

	suggestion, err := r.suggest(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return &Availability{Available: false, Suggestion: &suggestion}, nil
}

// suggest keeps room for the "-NNN" suffix so every proposal is itself a valid username.
func (r *Resolver) suggest(ctx context.Context, candidate string) (string, error) {
	base := candidate
	if len(base) > MaxUsernameLength-4 {
		base = base[:MaxUsernameLength-4]
	}
	var s string
	for i := 0; i < r.suggestionAttempts; i++ {
		s = fmt.Sprintf("%s-%d", base, r.intN(1000))
		taken, err := r.lookup.UsernameTaken(ctx, s)
		if err != nil {
			return "", fmt.Errorf("check suggestion %q: %w", s, err)
		}
		if !taken {
			return s, nil
		}
	}
	r.logger.Debug().Str("candidate", candidate).Msg("every suggestion collided; returning last one unverified")
	return s, nil
}

// AllocateUsername turns a free-form hint (an email local part, a display name) into an
// available username, falling back to suggestions when the sanitized hint is taken.
func (r *Resolver) AllocateUsername(ctx context.Context, hint string) (string, error) {
	if at := strings.Index(hint, "@"); at >= 0 {
		hint = hint[:at]
	}
	base := usernameStrip.ReplaceAllString(strings.ReplaceAll(CanonicalUsername(hint), " ", "-"), "")
	if len(base) > MaxUsernameLength-4 {
		base = base[:MaxUsernameLength-4]
	}
	if len(base) < MinUsernameLength {
		base = "user-" + r.randomString(4)
	}
	avail, err := r.CheckAvailability(ctx, base)
	if err != nil {
		return "", err
	}
	if avail.Available {
		return base, nil
	}
	return *avail.Suggestion, nil
}

// GenerateSlug derives a profile slug. With an email it is the first six alphanumeric
// characters of the local part, lowercased, followed by a number in [1000,9999]
// ("Jane.Doe@Example.com" -> "janedo4821"). Without one, or when the local part has no
// alphanumerics, it is eight random characters from [a-z0-9]. Uniqueness is not checked here.
func (r *Resolver) GenerateSlug(email string) string {
	email = strings.TrimSpace(email)
	if email != "" {
		local := email
		if at := strings.Index(local, "@"); at >= 0 {
			local = local[:at]
		}
		prefix := strings.ToLower(nonAlnum.ReplaceAllString(local, ""))
		if len(prefix) > slugPrefixLength {
			prefix = prefix[:slugPrefixLength]
		}
		if prefix != "" {
			return fmt.Sprintf("%s%d", prefix, 1000+r.intN(9000))
		}
	}
	return r.randomString(randomSlugLength)
}

func (r *Resolver) randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = slugAlphabet[r.intN(len(slugAlphabet))]
	}
	return string(b)
}

// AllocateSlug generates slugs until one is not taken, up to the configured attempt count.
// The unique index on slug still guards the final insert.
func (r *Resolver) AllocateSlug(ctx context.Context, email string) (string, error) {
	for i := 0; i < r.slugAttempts; i++ {
		slug := r.GenerateSlug(email)
		taken, err := r.lookup.SlugTaken(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", slug, err)
		}
		if !taken {
			return slug, nil
		}
		metrics.SlugCollisions.Inc()
	}
	return "", fmt.Errorf("no free slug after %d attempts", r.slugAttempts)
}
