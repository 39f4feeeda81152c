package memory

import (
	"time"

	"doc-qa-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRegistry holds the active stream session per conversation id.
// The TTL is a leak guard only; sessions are released explicitly when the
// stream reaches a terminal state.
type SessionRegistry struct {
	cache *cache.Cache
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	c := cache.New(ttl, 10*time.Minute)
	return &SessionRegistry{
		cache: c,
	}
}

// Acquire claims the conversation for one session. cache.Add is atomic, so
// exactly one of two racing starts wins; the loser gets an error.
func (r *SessionRegistry) Acquire(session *store.StreamSession) error {
	return r.cache.Add(session.ConversationId, session, cache.DefaultExpiration)
}

func (r *SessionRegistry) Get(conversationId string) (*store.StreamSession, bool) {
	if x, found := r.cache.Get(conversationId); found {
		return x.(*store.StreamSession), true
	}
	return nil, false
}

func (r *SessionRegistry) Release(conversationId string) {
	r.cache.Delete(conversationId)
}
