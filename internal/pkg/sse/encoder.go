package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// Source mirrors the citation shape sent on the terminal done event.
type Source struct {
	Document  string  `json:"document"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet,omitempty"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

type doneEvent struct {
	Done    bool     `json:"done"`
	Sources []Source `json:"sources"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// Encoder frames answer events as server-sent events. Every event is
// flushed immediately so the client sees fragments as they are produced;
// a flush failure means the client is gone and is returned to the caller.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w *bufio.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteToken emits one fragment. Zero-length tokens are suppressed rather
// than forwarded, so consumers never see spurious empty events.
func (e *Encoder) WriteToken(token string) error {
	if token == "" {
		return nil
	}
	return e.writeJSON(tokenEvent{Token: token})
}

// WriteDone emits the terminal success event carrying the citation set.
func (e *Encoder) WriteDone(sources []Source) error {
	if sources == nil {
		sources = []Source{}
	}
	return e.writeJSON(doneEvent{Done: true, Sources: sources})
}

// WriteError emits the terminal failure event, replacing done.
func (e *Encoder) WriteError(message string) error {
	return e.writeJSON(errorEvent{Error: message})
}

// WriteSentinel marks clean termination of the whole stream. It is always
// the last record, after either done or error.
func (e *Encoder) WriteSentinel() error {
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *Encoder) writeJSON(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return e.w.Flush()
}
