package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/identity"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/internal/taxonomy"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	MaxNameLength     = 80
	MaxBioLength      = 500
	MaxTagsPerKind    = 20
)

// TagResolver turns free-form labels into canonical taxonomy values.
type TagResolver interface {
	UpsertAll(ctx context.Context, kind taxonomy.Kind, labels []string) ([]string, error)
}

// RegisterInput is a password signup request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Name     string
}

// ProfileInput is an edit of the caller's own profile. Nil fields are left unchanged;
// Topics and Expertise take display labels.
type ProfileInput struct {
	Name      *string
	Bio       *string
	AvatarURL *string
	Topics    []string
	Expertise []string
}

// Service encapsulates user-related business logic
type Service struct {
	repo     UserRepository
	resolver *identity.Resolver
	tags     TagResolver
	logger   zerolog.Logger
	cost     int
}

// NewService wires the user store to the identity resolver. The resolver's lookups are
// answered by the same store.
func NewService(r UserRepository, tags TagResolver, slugAttempts, suggestionAttempts int, logger zerolog.Logger) *Service {
	return &Service{
		repo:     r,
		resolver: identity.NewResolver(Lookup{repo: r}, slugAttempts, suggestionAttempts, logger),
		tags:     tags,
		logger:   logger.With().Str("service", "users").Logger(),
		cost:     bcrypt.DefaultCost,
	}
}

// Resolver exposes the identity resolver backed by this service's store.
func (s *Service) Resolver() *identity.Resolver { return s.resolver }

// Lookup adapts a UserRepository to identity.Lookup.
type Lookup struct {
	repo UserRepository
}

func (l Lookup) UsernameTaken(ctx context.Context, username string) (bool, error) {
	u, err := l.repo.FindByUsername(ctx, username)
	return u != nil, err
}

func (l Lookup) SlugTaken(ctx context.Context, slug string) (bool, error) {
	u, err := l.repo.FindBySlug(ctx, slug)
	return u != nil, err
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Register creates a password account. The username must be free; an email or username
// that is already in use yields apperr.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := identity.CanonicalEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}
	username := identity.CanonicalUsername(in.Username)
	if err := identity.ValidateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("email already registered", email)
	}
	avail, err := s.resolver.CheckAvailability(ctx, username)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, apperr.Conflict("username already taken", username)
	}
	slug, err := s.resolver.AllocateSlug(ctx, email)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:           newID(),
		Email:        email,
		Username:     username,
		Slug:         slug,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Plan:         models.PlanFree,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicateKey) {
			return nil, apperr.Conflict("account already exists", email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info().Str("user_id", u.ID).Str("slug", u.Slug).Msg("user registered")
	return u, nil
}

// Authenticate checks a password against the account found by email or username.
// Unknown accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, apperr.Validation("login and password are required")
	}
	var (
		u   *models.User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = s.repo.FindByEmail(ctx, identity.CanonicalEmail(login))
	} else {
		u, err = s.repo.FindByUsername(ctx, identity.CanonicalUsername(login))
	}
	if err != nil {
		return nil, fmt.Errorf("lookup login: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return u, nil
}

// UpsertFromClaims returns the user for an OIDC subject, creating one on first sight.
// Returns nil, nil when the claims carry no subject.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, nil
	}
	existing, err := s.repo.FindBySub(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("lookup sub: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	hint, _ := claims["preferred_username"].(string)
	if hint == "" {
		hint = email
	}
	if hint == "" {
		hint = name
	}
	username, err := s.resolver.AllocateUsername(ctx, hint)
	if err != nil {
		return nil, err
	}
	email = identity.CanonicalEmail(email)
	slug, err := s.resolver.AllocateSlug(ctx, email)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:       newID(),
		Sub:      sub,
		Email:    email,
		Username: username,
		Slug:     slug,
		Name:     name,
		Plan:     models.PlanFree,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if !errors.Is(err, apperr.ErrDuplicateKey) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		// a concurrent first login for the same subject won
		winner, ferr := s.repo.FindBySub(ctx, sub)
		if ferr != nil {
			return nil, fmt.Errorf("re-read user: %w", ferr)
		}
		if winner == nil {
			return nil, apperr.Conflict("account already exists", email)
		}
		metrics.DuplicateKeyRecovered.WithLabelValues("users").Inc()
		return winner, nil
	}
	s.logger.Info().Str("user_id", u.ID).Str("sub", sub).Msg("user created from identity provider")
	return u, nil
}

// GetByID returns nil, nil when the user does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetBySlug resolves a public profile address.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.User, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	u, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("profile", slug)
	}
	return u, nil
}

// UpdateProfile applies a profile edit. Topic and expertise labels are upserted into the
// taxonomy and the user keeps their canonical values.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*models.User, error) {
	if id == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	upd := ProfileUpdate{AvatarURL: in.AvatarURL}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, apperr.Validation(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
		}
		upd.Name = &name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > MaxBioLength {
			return nil, apperr.Validation(fmt.Sprintf("bio must be at most %d characters", MaxBioLength))
		}
		upd.Bio = &bio
	}
	var err error
	if upd.Topics, err = s.resolveTags(ctx, taxonomy.KindTopic, in.Topics); err != nil {
		return nil, err
	}
	if upd.Expertise, err = s.resolveTags(ctx, taxonomy.KindExpertise, in.Expertise); err != nil {
		return nil, err
	}
	return s.repo.UpdateProfile(ctx, id, upd)
}

func (s *Service) resolveTags(ctx context.Context, kind taxonomy.Kind, labels []string) ([]string, error) {
	if labels == nil {
		return nil, nil
	}
	if len(labels) > MaxTagsPerKind {
		return nil, apperr.Validation(fmt.Sprintf("at most %d %s labels allowed", MaxTagsPerKind, kind))
	}
	values, err := s.tags.UpsertAll(ctx, kind, labels)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// ClaimsResolver maps verified token claims to a local user id. Tokens from localIssuer
// already carry the id as sub; anything else is an identity-provider token whose subject
// is linked to (or creates) a local account.
func (s *Service) ClaimsResolver(localIssuer string) func(ctx context.Context, claims map[string]interface{}) (string, error) {
	return func(ctx context.Context, claims map[string]interface{}) (string, error) {
		if iss, _ := claims["iss"].(string); iss == localIssuer {
			sub, _ := claims["sub"].(string)
			return sub, nil
		}
		u, err := s.UpsertFromClaims(ctx, claims)
		if err != nil || u == nil {
			return "", err
		}
		return u.ID, nil
	}
}
