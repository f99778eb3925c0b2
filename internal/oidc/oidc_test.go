package oidc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/folio/folio-api/internal/config"
	"github.com/stretchr/testify/require"
)

func rawToken(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"RS256"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func TestInsecureVerifier_DecodesClaims(t *testing.T) {
	tok, err := NewInsecureVerifier().Verify(context.Background(), rawToken(`{"sub":"kc-1","email":"a@b.c"}`))
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-1", claims["sub"])
	require.Equal(t, "a@b.c", claims["email"])
}

func TestInsecureVerifier_Rejects(t *testing.T) {
	v := NewInsecureVerifier()
	for _, raw := range []string{"", "one.two", "a.!!!.c", rawToken(`not json`), rawToken(`{"email":"x"}`)} {
		_, err := v.Verify(context.Background(), raw)
		require.Error(t, err, raw)
	}
}

func TestNewVerifier_RequiresConfig(t *testing.T) {
	_, err := NewVerifier(context.Background(), config.KeycloakConfig{})
	require.Error(t, err)
	_, err = NewVerifier(context.Background(), config.KeycloakConfig{URL: "http://kc", Realm: "folio"})
	require.Error(t, err)
}
