package entity

import "github.com/google/uuid"

// ChatSource is one citation attached to an assistant message. Immutable
// once written.
type ChatSource struct {
	Id            uuid.UUID
	ChatMessageId uuid.UUID
	Document      string
	Relevance     float64
	Snippet       string
	Position      int
}
