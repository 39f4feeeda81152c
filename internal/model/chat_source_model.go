package model

import "github.com/google/uuid"

type ChatSource struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatMessageId uuid.UUID `gorm:"type:uuid;not null;index"`
	Document      string    `gorm:"type:text;not null"`
	Relevance     float64   `gorm:"not null"`
	Snippet       string    `gorm:"type:text"`
	Position      int       `gorm:"not null;default:0"`
}

func (ChatSource) TableName() string {
	return "chat_sources"
}
