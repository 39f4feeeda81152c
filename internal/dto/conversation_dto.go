package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	ConversationId string `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
}

type CreateConversationResponse struct {
	ConversationId string `json:"conversation_id"`
}

type ConversationSummaryResponse struct {
	ConversationId string    `json:"conversation_id"`
	Preview        string    `json:"preview"`
	LastUpdated    time.Time `json:"last_updated"`
	MessageCount   int       `json:"message_count"`
}

type GetConversationResponse struct {
	ConversationId string                `json:"conversation_id"`
	Preview        string                `json:"preview"`
	MessageCount   int                   `json:"message_count"`
	Messages       []*ChatHistoryMessage `json:"messages"`
}

type ChatHistoryMessage struct {
	Id        uuid.UUID   `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Sources   []SourceDTO `json:"sources,omitempty"`
}

type ClearConversationsResponse struct {
	Cleared int `json:"cleared"`
}
