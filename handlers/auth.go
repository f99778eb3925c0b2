package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/internal/models"
	"github.com/folio/folio-api/internal/sessions"
	"github.com/folio/folio-api/internal/tokens"
	"github.com/folio/folio-api/internal/users"
	"github.com/folio/folio-api/pkg/logger"
	"github.com/folio/folio-api/pkg/middleware"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// SignupRequest creates a password account.
type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// LoginRequest is either a password login (default) or an authorization code from the
// identity provider.
type LoginRequest struct {
	Mode        string `json:"mode"` // "password" | "auth_code"
	Login       string `json:"login"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	idTokens    middleware.Verifier
	client      *http.Client
}

// NewAuthHandler builds the auth routes. idTokens verifies identity-provider id_tokens for
// the auth_code login mode and may be nil when no provider is configured.
func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, idTokens middleware.Verifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, idTokens: idTokens, client: &http.Client{Timeout: 10 * time.Second}}
}

// Register mounts /auth/* on r and /api/v1/me behind requireAuth.
func (h *AuthHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	a := r.Group("/auth")
	a.POST("/signup", h.Signup)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)

	r.GET("/api/v1/me", requireAuth, h.Me)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return defaultAccessTTL
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return defaultRefreshTTL
}

// issueTokens opens a refresh session for u and answers with a fresh token pair.
func (h *AuthHandler) issueTokens(c *gin.Context, status int, u *models.User) {
	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, h.refreshTTL())
	if err != nil {
		respondError(c, fmt.Errorf("create session: %w", err))
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		respondError(c, fmt.Errorf("sign access token: %w", err))
		return
	}
	c.JSON(status, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"user":         u,
		"expiresIn":    int(h.accessTTL().Seconds()),
	})
}

// Signup registers a password account and logs it in.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.usersSvc.Register(c.Request.Context(), users.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.issueTokens(c, http.StatusCreated, u)
}

// Login implements password login and authorization-code exchange with the identity provider.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	switch req.Mode {
	case "", "password":
		login := req.Login
		if login == "" {
			login = req.Username
		}
		if login == "" {
			login = req.Email
		}
		u, err := h.usersSvc.Authenticate(c.Request.Context(), login, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		h.issueTokens(c, http.StatusOK, u)
	case "auth_code":
		h.loginAuthCode(c, req)
	default:
		badRequest(c, "unsupported mode")
	}
}

func (h *AuthHandler) loginAuthCode(c *gin.Context, req LoginRequest) {
	issuer := h.cfg.Keycloak.Issuer()
	if issuer == "" || h.idTokens == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not configured"})
		return
	}
	if req.Code == "" || req.RedirectURI == "" {
		badRequest(c, "code and redirect_uri required for auth_code mode")
		return
	}
	logger.Debugf("Login(auth_code): received code length=%d redirect_uri=%s", len(req.Code), req.RedirectURI)

	ctx := c.Request.Context()
	tokenURL := issuer + "/protocol/openid-connect/token"
	tr, err := requestAuthCodeToken(ctx, h.client, tokenURL, h.cfg.Keycloak.ClientID, h.cfg.Keycloak.ClientSecret, req.Code, req.RedirectURI)
	if err != nil {
		logger.Warnf("auth-code token exchange error (redirect_uri=%q): %v", req.RedirectURI, err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	idt, err := h.idTokens.Verify(ctx, tr.IDToken)
	if err != nil {
		logger.Debugf("id token rejected: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid id token"})
		return
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid id token"})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(ctx, claims)
	if err != nil {
		respondError(c, err)
		return
	}
	if u == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "id token has no subject"})
		return
	}
	h.issueTokens(c, http.StatusOK, u)
}

// Refresh exchanges a refresh token for a new access token. The refresh token is rotated.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	next, sess, err := h.sessionsSvc.Rotate(ctx, req.RefreshToken, h.refreshTTL())
	if err != nil {
		respondError(c, fmt.Errorf("rotate session: %w", err))
		return
	}
	if sess == nil {
		respondError(c, apperr.Unauthorized("invalid refresh token"))
		return
	}
	u, err := h.usersSvc.GetByID(ctx, sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if u == nil {
		_ = h.sessionsSvc.DeleteRefresh(ctx, next)
		respondError(c, apperr.Unauthorized("invalid refresh token"))
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.accessTTL())
	if err != nil {
		respondError(c, fmt.Errorf("sign access token: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "refreshToken": next, "expiresIn": int(h.accessTTL().Seconds())})
}

// Logout invalidates the refresh token and blacklists the presented access token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if at, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		if exp, err := parseExpFromJWT(at); err == nil {
			if err := sessions.BlacklistAccessToken(ctx, at, time.Until(exp)); err != nil {
				respondError(c, fmt.Errorf("blacklist access token: %w", err))
				return
			}
		}
	}
	if err := h.sessionsSvc.DeleteRefresh(ctx, req.RefreshToken); err != nil {
		respondError(c, fmt.Errorf("delete session: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's own record.
func (h *AuthHandler) Me(c *gin.Context) {
	id := middleware.UserID(c)
	u, err := h.usersSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if u == nil {
		respondError(c, apperr.NotFound("user", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// parseExpFromJWT decodes the JWT payload and returns the `exp` claim as time.Time.
// The signature is not checked; the result only sizes a blacklist entry.
func parseExpFromJWT(tok string) (time.Time, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid token")
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, err
	}
	var claims struct {
		Exp *json.Number `json:"exp"`
	}
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return time.Time{}, err
	}
	if claims.Exp == nil {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	if i, err := claims.Exp.Int64(); err == nil {
		return time.Unix(i, 0), nil
	}
	f, err := claims.Exp.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported exp %q", claims.Exp.String())
	}
	return time.Unix(int64(f), 0), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

// requestAuthCodeToken exchanges an authorization code at the provider's token endpoint.
// Client credentials go in the form body; a 401 is retried once with HTTP Basic. A
// transient "Code not valid" is retried once.
func requestAuthCodeToken(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, code, redirectURI string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	body := form.Encode()

	post := func(basic bool) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if basic && clientSecret != "" {
			req.SetBasicAuth(clientID, clientSecret)
		}
		return client.Do(req)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := post(false)
		if err == nil && resp.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			logger.Warnf("requestAuthCodeToken: client_secret_post rejected; retrying with HTTP Basic")
			resp, err = post(true)
		}
		if err != nil {
			if attempt == 2 {
				return nil, err
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		tr, retry, err := decodeTokenResponse(resp)
		if retry && attempt == 1 {
			time.Sleep(150 * time.Millisecond)
			continue
		}
		return tr, err
	}
	return nil, fmt.Errorf("token exchange failed after retries")
}

func decodeTokenResponse(resp *http.Response) (*tokenResponse, bool, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retry := resp.StatusCode == http.StatusBadRequest && strings.Contains(string(b), "Code not valid")
		return nil, retry, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, false, err
	}
	if tr.IDToken == "" {
		return nil, false, fmt.Errorf("token endpoint returned no id_token")
	}
	return &tr, false, nil
}
