package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"doc-qa-be/pkg/embedding"
	"doc-qa-be/pkg/llm"
	"doc-qa-be/pkg/llm/ollama"
)

// Requires a local Ollama daemon; set OLLAMA_INTEGRATION=1 to run.

func ollamaBaseURL() string {
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:11434"
}

func skipWithoutOllama(t *testing.T) {
	if os.Getenv("OLLAMA_INTEGRATION") != "1" {
		t.Skip("Skipping integration test: OLLAMA_INTEGRATION not set")
	}
}

func TestOllamaChat(t *testing.T) {
	skipWithoutOllama(t)

	provider := ollama.NewOllamaProvider(ollamaBaseURL(), os.Getenv("LLM_MODEL"))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reply, err := provider.Chat(ctx, []llm.Message{
		{Role: "user", Content: "Reply with the single word: pong"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if strings.TrimSpace(reply) == "" {
		t.Fatal("Chat returned an empty reply")
	}
	t.Logf("Chat reply: %s", reply)
}

func TestOllamaChatStream(t *testing.T) {
	skipWithoutOllama(t)

	provider := ollama.NewOllamaProvider(ollamaBaseURL(), os.Getenv("LLM_MODEL"))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	stream, err := provider.ChatStream(ctx, []llm.Message{
		{Role: "user", Content: "Count from one to three."},
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	var b strings.Builder
	var sawDone bool
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		if chunk.Done {
			sawDone = true
			break
		}
		b.WriteString(chunk.Content)
	}

	if !sawDone {
		t.Fatal("stream ended without done marker")
	}
	if b.Len() == 0 {
		t.Fatal("stream produced no content")
	}
	t.Logf("Streamed %d bytes", b.Len())
}

func TestOllamaEmbedding(t *testing.T) {
	skipWithoutOllama(t)

	provider := embedding.NewOllamaProvider(ollamaBaseURL(), os.Getenv("OLLAMA_EMBEDDING_MODEL"))

	res, err := provider.Generate("hello world", "RETRIEVAL_QUERY")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(res.Embedding.Values) == 0 {
		t.Fatal("embedding has no dimensions")
	}

	// vectors are normalized to unit length for cosine distance
	var mag float64
	for _, v := range res.Embedding.Values {
		mag += float64(v) * float64(v)
	}
	if mag < 0.99 || mag > 1.01 {
		t.Fatalf("embedding is not normalized, |v|^2 = %f", mag)
	}
}
