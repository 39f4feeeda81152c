package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentChunk struct {
	Id         uuid.UUID
	Document   string
	Content    string
	Embedding  []float32
	ChunkIndex int
	CreatedAt  time.Time
}

// ScoredChunk pairs a chunk with its cosine distance to a query embedding.
type ScoredChunk struct {
	Chunk    *DocumentChunk
	Distance float64
}
