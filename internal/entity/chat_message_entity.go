package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id             uuid.UUID
	ConversationId string
	Role           string
	Content        string
	Position       int
	CreatedAt      time.Time
	Sources        []*ChatSource
}
