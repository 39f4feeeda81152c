package contract

import (
	"context"
	"time"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/specification"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
	// UpdateSummary rewrites the derived fields in place without touching
	// the message log.
	UpdateSummary(ctx context.Context, id, preview string, lastUpdated time.Time, messageCount int) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
