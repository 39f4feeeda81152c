package contract

import (
	"context"

	"doc-qa-be/internal/entity"
)

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	// FindNearest returns the chunks closest to the query embedding by
	// cosine distance, nearest first.
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredChunk, error)
	DeleteByDocument(ctx context.Context, document string) error
}
