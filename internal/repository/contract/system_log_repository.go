package contract

import (
	"context"

	"doc-qa-be/internal/entity"
)

type SystemLogRepository interface {
	Create(ctx context.Context, log *entity.SystemLog) error
}
