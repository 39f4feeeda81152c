package index

import (
	"sort"
	"sync"
	"time"
)

// Summary is the list-view projection of one conversation.
type Summary struct {
	ConversationId string    `json:"conversation_id"`
	Preview        string    `json:"preview"`
	LastUpdated    time.Time `json:"last_updated"`
	MessageCount   int       `json:"message_count"`
}

// ConversationIndex keeps the list view current incrementally: every
// append updates its conversation's entry in place, so listing never
// rescans message history. Callers update the index while still holding
// the store's per-conversation lock, which keeps List linearizable with
// the store.
type ConversationIndex struct {
	mu      sync.RWMutex
	entries map[string]Summary
}

func New() *ConversationIndex {
	return &ConversationIndex{
		entries: make(map[string]Summary),
	}
}

func (i *ConversationIndex) Upsert(s Summary) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[s.ConversationId] = s
}

func (i *ConversationIndex) Remove(conversationId string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, conversationId)
}

func (i *ConversationIndex) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[string]Summary)
}

// Rebuild replaces the whole index, used to warm it from the repository at
// boot.
func (i *ConversationIndex) Rebuild(summaries []Summary) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[string]Summary, len(summaries))
	for _, s := range summaries {
		i.entries[s.ConversationId] = s
	}
}

func (i *ConversationIndex) Get(conversationId string) (Summary, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.entries[conversationId]
	return s, ok
}

func (i *ConversationIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// List returns a snapshot sorted by last_updated descending, ties broken
// by conversation id ascending for determinism.
func (i *ConversationIndex) List() []Summary {
	i.mu.RLock()
	result := make([]Summary, 0, len(i.entries))
	for _, s := range i.entries {
		result = append(result, s)
	}
	i.mu.RUnlock()

	sort.Slice(result, func(a, b int) bool {
		if result[a].LastUpdated.Equal(result[b].LastUpdated) {
			return result[a].ConversationId < result[b].ConversationId
		}
		return result[a].LastUpdated.After(result[b].LastUpdated)
	})
	return result
}
