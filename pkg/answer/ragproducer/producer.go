package ragproducer

import (
	"context"
	"fmt"
	"strings"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/unitofwork"
	"doc-qa-be/pkg/answer"
	"doc-qa-be/pkg/embedding"
	"doc-qa-be/pkg/llm"
)

const (
	snippetMaxRunes = 200

	systemPrompt = `You are a document question-answering assistant.
Answer the user's question using the provided document excerpts.
Cite only facts present in the excerpts. If the excerpts do not contain
the answer, say so directly.`

	hybridSystemPrompt = `You are a document question-answering assistant.
Prefer the provided document excerpts; you may fall back to general
knowledge when the excerpts do not cover the question, and say when you do.`
)

// Producer is the reference answer.Producer: pgvector retrieval over
// document_chunks plus a streaming LLM completion. Mode semantics:
// documents_only retrieves but ignores history, auto retrieves with
// history, hybrid additionally allows general-knowledge fallback.
type Producer struct {
	uowFactory unitofwork.RepositoryFactory
	embedder   embedding.EmbeddingProvider
	llmClient  llm.LLMProvider
	topK       int
}

var _ answer.Producer = &Producer{}

func New(
	uowFactory unitofwork.RepositoryFactory,
	embedder embedding.EmbeddingProvider,
	llmClient llm.LLMProvider,
	topK int,
) *Producer {
	if topK <= 0 {
		topK = 5
	}
	return &Producer{
		uowFactory: uowFactory,
		embedder:   embedder,
		llmClient:  llmClient,
		topK:       topK,
	}
}

func (p *Producer) Produce(ctx context.Context, history []answer.Message, query, mode string) (<-chan answer.Event, error) {
	chunks, err := p.retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	messages := p.buildMessages(history, query, mode, chunks)

	stream, err := p.llmClient.ChatStream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}

	sources := sourcesFromChunks(chunks)

	out := make(chan answer.Event, 16)
	go func() {
		defer close(out)
		for chunk := range stream {
			if chunk.Err != nil {
				out <- answer.Event{Err: chunk.Err}
				return
			}
			if chunk.Done {
				out <- answer.Event{Final: &answer.FinalResult{Sources: sources}}
				return
			}
			out <- answer.Event{Token: chunk.Content}
		}
		out <- answer.Event{Err: fmt.Errorf("generation stream closed unexpectedly")}
	}()

	return out, nil
}

func (p *Producer) retrieve(ctx context.Context, query string) ([]*entity.ScoredChunk, error) {
	res, err := p.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	uow := p.uowFactory.NewUnitOfWork(ctx)
	return uow.DocumentChunkRepository().FindNearest(ctx, res.Embedding.Values, p.topK)
}

func (p *Producer) buildMessages(history []answer.Message, query, mode string, chunks []*entity.ScoredChunk) []llm.Message {
	system := systemPrompt
	if mode == "hybrid" {
		system = hybridSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)
	if len(chunks) > 0 {
		b.WriteString("\n\n=== DOCUMENT EXCERPTS ===\n")
		for i, sc := range chunks {
			fmt.Fprintf(&b, "--- EXCERPT %d (document: %s) ---\n%s\n", i+1, sc.Chunk.Document, sc.Chunk.Content)
		}
	}

	messages := []llm.Message{{Role: "system", Content: b.String()}}

	// documents_only answers from excerpts alone; prior turns are dropped
	if mode != "documents_only" {
		for _, msg := range history {
			messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
		}
	}

	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages
}

func sourcesFromChunks(chunks []*entity.ScoredChunk) []answer.Source {
	sources := make([]answer.Source, len(chunks))
	for i, sc := range chunks {
		sources[i] = answer.Source{
			Document:  sc.Chunk.Document,
			Relevance: 1 - sc.Distance,
			Snippet:   truncateRunes(sc.Chunk.Content, snippetMaxRunes),
		}
	}
	return sources
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
