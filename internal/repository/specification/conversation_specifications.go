package specification

import "gorm.io/gorm"

// ByConversationID filters rows belonging to one conversation
type ByConversationID struct {
	ConversationID string
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

// OrderByPosition returns messages in insertion order
type OrderByPosition struct{}

func (s OrderByPosition) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// OrderByLastUpdated lists conversations newest first, ties broken by id
// ascending for a deterministic order.
type OrderByLastUpdated struct{}

func (s OrderByLastUpdated) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("last_updated DESC").Order("id ASC")
}
