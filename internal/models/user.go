package models

import "time"

// Plan identifiers stored on User.Plan.
const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanLifetime = "lifetime"
)

// User is the persisted account record. Email, Username and Slug are each unique.
type User struct {
	ID            string     `bson:"_id" json:"id"`
	Sub           string     `bson:"sub,omitempty" json:"sub,omitempty"` // OIDC subject for externally authenticated users
	Email         string     `bson:"email,omitempty" json:"email"`
	Username      string     `bson:"username" json:"username"`
	Slug          string     `bson:"slug" json:"slug"`
	Name          string     `bson:"name" json:"name"`
	Bio           string     `bson:"bio,omitempty" json:"bio,omitempty"`
	AvatarURL     string     `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Topics        []string   `bson:"topics,omitempty" json:"topics,omitempty"`
	Expertise     []string   `bson:"expertise,omitempty" json:"expertise,omitempty"`
	PasswordHash  string     `bson:"passwordHash,omitempty" json:"-"`
	Plan          string     `bson:"plan,omitempty" json:"plan,omitempty"`
	PlanExpiresAt *time.Time `bson:"planExpiresAt,omitempty" json:"planExpiresAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// PublicProfile is the subset of a user shown on the public profile page.
type PublicProfile struct {
	Username  string   `json:"username"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio,omitempty"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
	Topics    []string `json:"topics"`
	Expertise []string `json:"expertise"`
}

// Public strips private fields.
func (u *User) Public() PublicProfile {
	p := PublicProfile{
		Username:  u.Username,
		Slug:      u.Slug,
		Name:      u.Name,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Topics:    u.Topics,
		Expertise: u.Expertise,
	}
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.Expertise == nil {
		p.Expertise = []string{}
	}
	return p
}
