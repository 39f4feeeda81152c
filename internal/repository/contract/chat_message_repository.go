package contract

import (
	"context"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	// Create persists the message together with its sources.
	Create(ctx context.Context, message *entity.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
	FindSourcesByMessageIds(ctx context.Context, messageIds []uuid.UUID) ([]*entity.ChatSource, error)
	DeleteByConversationId(ctx context.Context, conversationId string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
