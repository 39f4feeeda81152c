package model

import "time"

type Conversation struct {
	Id           string    `gorm:"type:text;primaryKey"`
	Preview      string    `gorm:"type:text;not null;default:''"`
	LastUpdated  time.Time `gorm:"not null;index"`
	MessageCount int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}
