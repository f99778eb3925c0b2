package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateAccessToken creates a signed JWT access token for the user.
// The subject is the user's id; username and slug ride along for the client.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      u.ID,
		"iss":      cfg.JWT.Issuer,
		"username": u.Username,
		"slug":     u.Slug,
		"name":     u.Name,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	if u.Email != "" {
		claims["email"] = u.Email
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// ExpiresAt reads the exp claim of an already verified token; zero when absent.
func ExpiresAt(claims map[string]interface{}) time.Time {
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case int64:
		return time.Unix(exp, 0)
	}
	return time.Time{}
}

type mapToken map[string]interface{}

func (t mapToken) Claims(v interface{}) error {
	m, ok := v.(*map[string]interface{})
	if !ok {
		return fmt.Errorf("unsupported claims target %T", v)
	}
	*m = map[string]interface{}(t)
	return nil
}

// Verifier checks access tokens issued by GenerateAccessToken. It implements
// middleware.Verifier so locally issued tokens and OIDC tokens share the auth path.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Issuer is the iss claim this verifier accepts.
func (v *Verifier) Issuer() string { return v.issuer }

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("access token secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if _, ok := claims["exp"]; !ok {
		return nil, errors.New("token has no expiry")
	}
	return mapToken(claims), nil
}
