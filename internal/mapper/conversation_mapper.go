package mapper

import (
	"encoding/json"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation mappers (summary fields only; messages are loaded separately)

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}
	return &entity.Conversation{
		Id:           c.Id,
		Preview:      c.Preview,
		LastUpdated:  c.LastUpdated,
		MessageCount: c.MessageCount,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}
	return &model.Conversation{
		Id:           c.Id,
		Preview:      c.Preview,
		LastUpdated:  c.LastUpdated,
		MessageCount: c.MessageCount,
	}
}

// Message mappers

func (m *ConversationMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}
	return &entity.ChatMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		Position:       msg.Position,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ConversationMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}
	return &model.ChatMessage{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Role:           msg.Role,
		Content:        msg.Content,
		Position:       msg.Position,
		CreatedAt:      msg.CreatedAt,
	}
}

// Source mappers

func (m *ConversationMapper) ChatSourceToEntity(s *model.ChatSource) *entity.ChatSource {
	if s == nil {
		return nil
	}
	e := entity.ChatSource(*s)
	return &e
}

func (m *ConversationMapper) ChatSourceToModel(s *entity.ChatSource) *model.ChatSource {
	if s == nil {
		return nil
	}
	mod := model.ChatSource(*s)
	return &mod
}

// Document chunk mappers

func (m *ConversationMapper) DocumentChunkToEntity(c *model.DocumentChunk) *entity.DocumentChunk {
	if c == nil {
		return nil
	}
	return &entity.DocumentChunk{
		Id:         c.Id,
		Document:   c.Document,
		Content:    c.Content,
		Embedding:  c.Embedding.Slice(),
		ChunkIndex: c.ChunkIndex,
		CreatedAt:  c.CreatedAt,
	}
}

func (m *ConversationMapper) DocumentChunkToModel(c *entity.DocumentChunk) *model.DocumentChunk {
	if c == nil {
		return nil
	}
	return &model.DocumentChunk{
		Id:         c.Id,
		Document:   c.Document,
		Content:    c.Content,
		Embedding:  pgvector.NewVector(c.Embedding),
		ChunkIndex: c.ChunkIndex,
		CreatedAt:  c.CreatedAt,
	}
}

// System log mappers

func (m *ConversationMapper) SystemLogToModel(l *entity.SystemLog) *model.SystemLog {
	if l == nil {
		return nil
	}
	var details []byte
	if l.Details != nil {
		details, _ = json.Marshal(l.Details)
	}
	var module *string
	if l.Module != "" {
		mod := l.Module
		module = &mod
	}
	return &model.SystemLog{
		Id:        l.Id,
		Level:     l.Level,
		Module:    module,
		Message:   l.Message,
		Details:   details,
		CreatedAt: l.CreatedAt,
	}
}
