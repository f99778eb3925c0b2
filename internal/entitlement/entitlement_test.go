package entitlement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	exp := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		user models.User
		want Entitlement
	}{
		{"pro with expiry", models.User{Plan: "pro", PlanExpiresAt: &exp}, Entitlement{Name: "pro", Price: "₦48,000/yr", Status: "Active", Renewal: "2025-03-01"}},
		{"pro without expiry", models.User{Plan: "pro"}, Entitlement{Name: "pro", Price: "₦48,000/yr", Status: "Active"}},
		{"lifetime", models.User{Plan: "lifetime"}, Entitlement{Name: "lifetime", Price: "₦100,000", Status: "Active", Renewal: "Never"}},
		{"no plan", models.User{}, Entitlement{Name: "Free", Price: "₦0", Status: "Active", Renewal: "Never"}},
		{"explicit free", models.User{Plan: "free"}, Entitlement{Name: "free", Price: "₦0", Status: "Active", Renewal: "Never"}},
		{"unknown plan", models.User{Plan: "enterprise"}, Entitlement{Name: "enterprise", Price: "₦0", Status: "Active", Renewal: "Never"}},
		{"lifetime ignores expiry", models.User{Plan: "lifetime", PlanExpiresAt: &exp}, Entitlement{Name: "lifetime", Price: "₦100,000", Status: "Active", Renewal: "Never"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(&tc.user))
		})
	}
}

func TestResolve_RenewalUsesUTCDate(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	exp := time.Date(2025, 3, 1, 0, 30, 0, 0, lagos) // 2025-02-28T23:30Z
	got := Resolve(&models.User{Plan: "pro", PlanExpiresAt: &exp})
	assert.Equal(t, "2025-02-28", got.Renewal)
}

func TestEntitlement_JSONOmitsMissingRenewal(t *testing.T) {
	b, err := json.Marshal(Resolve(&models.User{Plan: "pro"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"pro","price":"₦48,000/yr","status":"Active"}`, string(b))
}

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func TestService_ForUser(t *testing.T) {
	svc := NewService(&fakeUsers{users: map[string]*models.User{"u1": {ID: "u1", Plan: "lifetime"}}})
	ctx := context.Background()

	e, err := svc.ForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "lifetime", e.Name)

	_, err = svc.ForUser(ctx, "")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	require.NotErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ForUser(ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.NotErrorIs(t, err, apperr.ErrUnauthorized)

	failing := NewService(&fakeUsers{err: apperr.ErrStoreUnavailable})
	_, err = failing.ForUser(ctx, "u1")
	require.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}
