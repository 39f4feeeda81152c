package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc-qa-be/internal/config"
	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/unitofwork"
	"doc-qa-be/pkg/database"
	"doc-qa-be/pkg/embedding"
	"doc-qa-be/pkg/utils"

	"github.com/google/uuid"
)

// Ingests a directory of .txt/.md files into document_chunks so the chat
// endpoints have something to retrieve from.
//
// Usage: ingest <docs-dir>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: ingest <docs-dir>")
	}
	docsDir := os.Args[1]

	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	uowFactory := unitofwork.NewRepositoryFactory(db)
	embedder := embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)

	entries, err := os.ReadDir(docsDir)
	if err != nil {
		log.Fatalf("Error: Failed to read docs dir %s: %v", docsDir, err)
	}

	ctx := context.Background()
	total := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}

		n, err := ingestFile(ctx, uowFactory, embedder, docsDir, entry.Name())
		if err != nil {
			log.Printf("[ERROR] Failed to ingest %s: %v", entry.Name(), err)
			continue
		}
		log.Printf("[INFO] Ingested %s (%d chunks)", entry.Name(), n)
		total += n
	}

	log.Printf("✅ Success: ingestion completed, %d chunks total.", total)
}

func ingestFile(
	ctx context.Context,
	uowFactory unitofwork.RepositoryFactory,
	embedder embedding.EmbeddingProvider,
	docsDir, name string,
) (int, error) {
	raw, err := os.ReadFile(filepath.Join(docsDir, name))
	if err != nil {
		return 0, err
	}

	// ChunkSize: 1500 chars with 200 overlap, safe for embedding context
	pieces := utils.SplitText(string(raw), 1500, 200)

	chunks := make([]*entity.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		res, err := embedder.Generate(piece, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return 0, err
		}
		chunks = append(chunks, &entity.DocumentChunk{
			Id:         uuid.New(),
			Document:   name,
			Content:    piece,
			Embedding:  res.Embedding.Values,
			ChunkIndex: i,
			CreatedAt:  time.Now(),
		})
	}

	uow := uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return 0, err
	}
	defer uow.Rollback()

	// Re-ingesting a document replaces its previous chunks
	if err := uow.DocumentChunkRepository().DeleteByDocument(ctx, name); err != nil {
		return 0, err
	}
	if err := uow.DocumentChunkRepository().CreateBulk(ctx, chunks); err != nil {
		return 0, err
	}
	if err := uow.Commit(); err != nil {
		return 0, err
	}

	return len(chunks), nil
}
