package implementation

import (
	"context"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/mapper"
	"doc-qa-be/internal/model"
	"doc-qa-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]*model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		models[i] = r.mapper.DocumentChunkToModel(c)
	}
	return r.db.WithContext(ctx).Create(models).Error
}

func (r *DocumentChunkRepositoryImpl) FindNearest(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	// <=> is pgvector's cosine distance operator. Embeddings are normalized
	// at generation time, so distance = 1 - cosine similarity.
	type result struct {
		model.DocumentChunk
		Distance float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, embedding <=> ? as distance", queryVector).
		Order("distance ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredChunk, len(results))
	for i, res := range results {
		chunk := res.DocumentChunk
		scored[i] = &entity.ScoredChunk{
			Chunk:    r.mapper.DocumentChunkToEntity(&chunk),
			Distance: res.Distance,
		}
	}
	return scored, nil
}

func (r *DocumentChunkRepositoryImpl) DeleteByDocument(ctx context.Context, document string) error {
	return r.db.WithContext(ctx).Where("document = ?", document).Delete(&model.DocumentChunk{}).Error
}
