package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/sessions"
	"github.com/folio/folio-api/pkg/logger"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey      = "claims"
	UserIDKey      = "userID"
	AccessTokenKey = "accessToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// UserResolver maps verified claims to the local user id.
type UserResolver func(ctx context.Context, claims map[string]interface{}) (string, error)

type chain []Verifier

func (c chain) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range c {
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// FirstOf returns a Verifier that accepts a token when any of vers accepts it, tried in order.
// Nil verifiers are skipped.
func FirstOf(vers ...Verifier) Verifier {
	var c chain
	for _, v := range vers {
		if v != nil {
			c = append(c, v)
		}
	}
	return c
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier.
// Revoked tokens are rejected. The caller's user id is taken from the sub claim unless a
// resolver is given.
func AuthMiddleware(ver Verifier, resolve ...UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := BearerToken(auth)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		revoked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), token)
		if err != nil {
			logger.Warnf("blacklist check failed: %v", err)
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debugf("token verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}

		userID, _ := claims["sub"].(string)
		if len(resolve) > 0 && resolve[0] != nil {
			userID, err = resolve[0](c.Request.Context(), claims)
			if err != nil {
				status := apperr.Status(err)
				if status >= http.StatusInternalServerError {
					logger.Errorf("resolve user from claims: %v", err)
				} else {
					logger.Debugf("resolve user from claims: %v", err)
				}
				c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
				return
			}
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, userID)
		c.Set(AccessTokenKey, token)
		c.Next()
	}
}

// UserID returns the authenticated caller's id, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
