package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"doc-qa-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(conversationId string) *store.StreamSession {
	_, cancel := context.WithCancel(context.Background())
	return store.NewStreamSession(conversationId, "query", "auto", cancel)
}

func TestAcquireIsExclusivePerConversation(t *testing.T) {
	registry := NewSessionRegistry(time.Minute)

	require.NoError(t, registry.Acquire(newSession("c1")))
	assert.Error(t, registry.Acquire(newSession("c1")))

	// other conversations are unaffected
	assert.NoError(t, registry.Acquire(newSession("c2")))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	registry := NewSessionRegistry(time.Minute)

	require.NoError(t, registry.Acquire(newSession("c1")))
	registry.Release("c1")
	assert.NoError(t, registry.Acquire(newSession("c1")))
}

func TestGetReturnsActiveSession(t *testing.T) {
	registry := NewSessionRegistry(time.Minute)

	s := newSession("c1")
	require.NoError(t, registry.Acquire(s))

	got, found := registry.Get("c1")
	require.True(t, found)
	assert.Same(t, s, got)

	_, found = registry.Get("idle")
	assert.False(t, found)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	registry := NewSessionRegistry(time.Minute)

	const racers = 32
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := registry.Acquire(newSession("c1")); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}
