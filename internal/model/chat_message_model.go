package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationId string    `gorm:"type:text;not null;index:idx_chat_messages_conversation_position,priority:1"`
	Role           string    `gorm:"type:varchar(20);not null"`
	Content        string    `gorm:"type:text;not null"`
	Position       int       `gorm:"not null;index:idx_chat_messages_conversation_position,priority:2"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
