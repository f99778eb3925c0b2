// Package entitlement turns a user's stored plan into the billing summary shown in the app.
package entitlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/models"
)

const (
	StatusActive = "Active"
	RenewalNever = "Never"
	DefaultName  = "Free"
)

// prices is closed: a new plan needs an entry here or it is billed as free.
var prices = map[string]string{
	models.PlanPro:      "₦48,000/yr",
	models.PlanLifetime: "₦100,000",
}

const freePrice = "₦0"

// Entitlement is the display-facing plan summary. Renewal is empty (omitted) for a pro
// plan without a recorded expiry.
type Entitlement struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	Status  string `json:"status"`
	Renewal string `json:"renewal,omitempty"`
}

// Price returns the list price for a plan identifier.
func Price(plan string) string {
	if p, ok := prices[plan]; ok {
		return p
	}
	return freePrice
}

// Resolve computes the entitlement for u. Status is always Active; expiry does not downgrade.
func Resolve(u *models.User) Entitlement {
	e := Entitlement{
		Name:    DefaultName,
		Price:   Price(u.Plan),
		Status:  StatusActive,
		Renewal: RenewalNever,
	}
	if u.Plan != "" {
		e.Name = u.Plan
	}
	if u.Plan == models.PlanPro {
		e.Renewal = ""
		if u.PlanExpiresAt != nil {
			e.Renewal = u.PlanExpiresAt.UTC().Format("2006-01-02")
		}
	}
	return e
}

// UserGetter loads a user by id, returning nil, nil when absent.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Service resolves entitlements for the authenticated caller.
type Service struct {
	users UserGetter
}

func NewService(users UserGetter) *Service {
	return &Service{users: users}
}

// ForUser fails with Unauthorized when no caller id is known and NotFound when the
// caller's record is missing; the two are never conflated.
func (s *Service) ForUser(ctx context.Context, userID string) (*Entitlement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if u == nil {
		return nil, apperr.NotFound("user", userID)
	}
	e := Resolve(u)
	return &e, nil
}
