package answer

import "context"

// Message is one prior conversation turn handed to the producer as context.
type Message struct {
	Role    string
	Content string
}

// Source cites retrieved material backing part of an answer.
type Source struct {
	Document  string  `json:"document"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet"`
}

// FinalResult carries the citation set delivered with the terminal event.
type FinalResult struct {
	Sources []Source
}

// Event is one element of the answer stream. Exactly one field is set:
// Token for a fragment, Final on successful completion, Err on failure.
// Final and Err are terminal; the channel is closed right after either.
type Event struct {
	Token string
	Final *FinalResult
	Err   error
}

// Producer generates an answer for a query as a lazy fragment sequence.
// Fragments arrive on the returned channel in production order. Cancelling
// ctx must stop production promptly; the channel is still closed. Mode is
// an opaque label owned by the implementation and forwarded unchanged by
// callers.
type Producer interface {
	Produce(ctx context.Context, history []Message, query, mode string) (<-chan Event, error)
}
