package models

import "time"

// Item is a catalog entry that can be scheduled for review.
// Kind is opaque metadata: the scheduler never looks at it.
type Item struct {
	ID        string    `json:"id" db:"id"`         // e.g. "vocab:serendipity"
	Kind      string    `json:"kind" db:"kind"`     // vocabulary, idiom, gk
	Prompt    string    `json:"prompt" db:"prompt"` // what the learner sees
	Answer    string    `json:"answer" db:"answer"`
	Details   string    `json:"details" db:"details"` // usage example, explanation
	Topic     string    `json:"topic" db:"topic"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
