package store

import (
	"context"
	"sync"
	"time"
)

// StreamSession tracks one active answer stream bound to a conversation.
// It lives only in memory; terminal sessions are dropped, never persisted.
type StreamSession struct {
	ConversationId string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Mode           string    `json:"mode"`
	CreatedAt      time.Time `json:"created_at"`

	// Cancel stops the producer. Safe to call more than once.
	Cancel context.CancelFunc `json:"-"`

	mu    sync.Mutex
	state string
}

const (
	StateOpen      = "OPEN"      // session created, producer not yet delivering
	StateStreaming = "STREAMING" // fragments being relayed
	StateDone      = "DONE"      // terminal, success
	StateFailed    = "FAILED"    // terminal, producer error or timeout
	StateCancelled = "CANCELLED" // terminal, disconnect or explicit cancel
)

func NewStreamSession(conversationId, query, mode string, cancel context.CancelFunc) *StreamSession {
	return &StreamSession{
		ConversationId: conversationId,
		Query:          query,
		Mode:           mode,
		CreatedAt:      time.Now(),
		Cancel:         cancel,
		state:          StateOpen,
	}
}

func (s *StreamSession) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to the given state. Terminal states stick:
// once DONE/FAILED/CANCELLED is reached further transitions are ignored,
// so a late cancel cannot overwrite a completed session.
func (s *StreamSession) Transition(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal() {
		return false
	}
	s.state = state
	return true
}

func (s *StreamSession) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal()
}

func (s *StreamSession) terminal() bool {
	return s.state == StateDone || s.state == StateFailed || s.state == StateCancelled
}
