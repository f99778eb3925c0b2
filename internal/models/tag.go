package models

import "time"

// TaggedRecord is a taxonomy entry (topic or expertise).
// Value is the canonical key and is unique within its collection; Label keeps the
// display form supplied by whoever created it first.
type TaggedRecord struct {
	Value     string    `bson:"value" json:"value"`
	Label     string    `bson:"label" json:"label"`
	Archived  bool      `bson:"archived" json:"archived"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
