package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/folio/folio-api/internal/config"
	"github.com/folio/folio-api/pkg/middleware"
)

// Verifier checks bearer tokens issued by the configured Keycloak realm.
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the realm's provider metadata. It fails when Keycloak is not
// configured or the issuer cannot be reached.
func NewVerifier(ctx context.Context, kc config.KeycloakConfig) (*Verifier, error) {
	issuer := kc.Issuer()
	if issuer == "" || kc.ClientID == "" {
		return nil, fmt.Errorf("keycloak issuer and client id are required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{
		issuer:   issuer,
		verifier: provider.Verifier(&oidc.Config{ClientID: kc.ClientID}),
	}, nil
}

// Issuer is the realm URL tokens must carry in iss.
func (v *Verifier) Issuer() string { return v.issuer }

// Verify returns the verified token; *oidc.IDToken already satisfies middleware.Token.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
