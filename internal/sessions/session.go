package sessions

import "time"

// DefaultTTL applies to sessions stored without an expiry.
const DefaultTTL = 7 * 24 * time.Hour

// Session is a refresh session. Stored in Redis when available, otherwise in the Mongo
// sessions collection where a TTL index on expiresAt reaps it.
type Session struct {
	ID           string    `bson:"_id,omitempty" json:"id,omitempty"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	UserID       string    `bson:"userId" json:"userId"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the session can no longer be exchanged at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// stamp fills in CreatedAt and ExpiresAt when the caller left them zero.
func (s *Session) stamp(now time.Time, ttl time.Duration) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		s.ExpiresAt = s.CreatedAt.Add(ttl)
	}
}
