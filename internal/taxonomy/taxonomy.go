// Package taxonomy maintains the topic and expertise label collections.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/internal/database"
)

// Kind selects one taxonomy collection.
type Kind string

const (
	KindTopic     Kind = "topic"
	KindExpertise Kind = "expertise"
)

// Collection returns the Mongo collection backing the kind.
func (k Kind) Collection() string {
	if k == KindExpertise {
		return database.ExpertiseCollection
	}
	return database.TopicsCollection
}

// ParseKind accepts the singular kind names plus the plural route segments.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "topic", "topics":
		return KindTopic, nil
	case "expertise":
		return KindExpertise, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown taxonomy %q", s))
}

// Canonicalize lowercases the label and joins its whitespace-separated words with single hyphens.
// "  Machine   Learning " -> "machine-learning".
func Canonicalize(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}
