package entity

import "time"

// Conversation is the append-only message log plus its derived summary
// fields. Messages are ordered by Position; summary fields are recomputed
// on every append, never rescanned from history.
type Conversation struct {
	Id           string
	Preview      string
	LastUpdated  time.Time
	MessageCount int
	Messages     []*ChatMessage
}
