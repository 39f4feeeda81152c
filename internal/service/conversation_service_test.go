package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"doc-qa-be/internal/apperror"
	"doc-qa-be/internal/constant"
	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/index"
	"doc-qa-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func newConversationFixture() (IConversationService, *memory.Store, *index.ConversationIndex) {
	store := memory.NewStore()
	idx := index.New()
	svc := NewConversationService(memory.NewRepositoryFactory(store), idx, nil, nopLogger{})
	return svc, store, idx
}

func userMessage(content string) *entity.ChatMessage {
	return &entity.ChatMessage{Role: constant.ChatMessageRoleUser, Content: content}
}

func TestCreateAndGetEmptyConversation(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	res, err := svc.Create(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", res.ConversationId)

	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "", got.Preview)
	assert.Equal(t, 0, got.MessageCount)
	assert.Empty(t, got.Messages)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(list))
	assert.Equal(t, "", list[0].Preview)
	assert.Equal(t, 0, list[0].MessageCount)
}

func TestCreateGeneratesIdWhenEmpty(t *testing.T) {
	svc, _, _ := newConversationFixture()

	res, err := svc.Create(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversationId)
}

func TestCreateDuplicateFails(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, svc.Append(ctx, "c1", userMessage("keep me")))

	_, err = svc.Create(ctx, "c1")
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyExists))

	// the existing conversation is untouched
	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, "keep me", got.Messages[0].Content)
}

func TestAppendToMissingConversation(t *testing.T) {
	svc, _, _ := newConversationFixture()

	err := svc.Append(context.Background(), "ghost", userMessage("hello"))
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestAppendRoundTripPreservesContent(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)

	content := "  line one\n\tline two — ünïcode ✓  "
	require.NoError(t, svc.Append(ctx, "c1", userMessage(content)))
	require.NoError(t, svc.Append(ctx, "c1", &entity.ChatMessage{
		Role:    constant.ChatMessageRoleAssistant,
		Content: "reply",
	}))

	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, got.MessageCount)
	assert.Equal(t, content, got.Messages[0].Content)
	assert.Equal(t, constant.ChatMessageRoleUser, got.Messages[0].Role)
	assert.Equal(t, constant.ChatMessageRoleAssistant, got.Messages[1].Role)

	// get carries the same preview the list shows: the latest message
	assert.Equal(t, "reply", got.Preview)
}

func TestAppendCopiesMessageAndSources(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)

	msg := &entity.ChatMessage{
		Role:    constant.ChatMessageRoleAssistant,
		Content: "X is great.",
		Sources: []*entity.ChatSource{
			{Document: "d1", Relevance: 0.9, Snippet: "X is..."},
		},
	}
	require.NoError(t, svc.Append(ctx, "c1", msg))

	// mutating the caller's message must not reach the stored copy
	msg.Content = "tampered"
	msg.Sources[0].Document = "tampered"

	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, len(got.Messages))
	assert.Equal(t, "X is great.", got.Messages[0].Content)
	require.Equal(t, 1, len(got.Messages[0].Sources))
	assert.Equal(t, "d1", got.Messages[0].Sources[0].Document)
	assert.Equal(t, 0.9, got.Messages[0].Sources[0].Relevance)
}

func TestPreviewTruncation(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	exact := strings.Repeat("a", constant.PreviewMaxRunes)
	long := strings.Repeat("b", constant.PreviewMaxRunes+1)

	_, err := svc.Create(ctx, "exact")
	require.NoError(t, err)
	require.NoError(t, svc.Append(ctx, "exact", userMessage(exact)))

	_, err = svc.Create(ctx, "long")
	require.NoError(t, err)
	require.NoError(t, svc.Append(ctx, "long", userMessage(long)))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	previews := make(map[string]string, len(list))
	for _, s := range list {
		previews[s.ConversationId] = s.Preview
	}

	// a preview of exactly the limit is kept verbatim, one over is truncated
	assert.Equal(t, exact, previews["exact"])
	assert.Equal(t, long[:constant.PreviewMaxRunes]+constant.PreviewSuffix, previews["long"])
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.Append(ctx, "c1", userMessage(fmt.Sprintf("msg-%d", i))))
		}(i)
	}
	wg.Wait()

	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, writers, got.MessageCount)
	require.Equal(t, writers, len(got.Messages))

	// every write survived exactly once
	seen := make(map[string]bool, writers)
	for _, m := range got.Messages {
		assert.False(t, seen[m.Content], "duplicate message %s", m.Content)
		seen[m.Content] = true
	}
	assert.Equal(t, writers, len(seen))
}

func TestListOrdersByRecency(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := svc.Create(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Append(ctx, "c2", userMessage("newest activity")))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, len(list))
	assert.Equal(t, "c2", list[0].ConversationId)
}

func TestDeleteConversation(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, svc.Append(ctx, "c1", userMessage("hello")))

	require.NoError(t, svc.Delete(ctx, "c1"))

	_, err = svc.Get(ctx, "c1")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svc.Delete(ctx, "c1")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestClearAll(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2"} {
		_, err := svc.Create(ctx, id)
		require.NoError(t, err)
		require.NoError(t, svc.Append(ctx, id, userMessage("hello")))
	}

	res, err := svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cleared)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, "c1")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	// the store accepts new conversations after a reset
	_, err = svc.Create(ctx, "c1")
	assert.NoError(t, err)
}

func TestAppendStoreFailureSurfacesAsStoreIO(t *testing.T) {
	svc, store, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)

	store.FailMessageWrites(errors.New("disk full"))
	err = svc.Append(ctx, "c1", userMessage("hello"))
	assert.True(t, apperror.IsKind(err, apperror.KindStoreIOFailure))

	store.FailMessageWrites(nil)
	got, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestHistoryLimit(t *testing.T) {
	svc, _, _ := newConversationFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Append(ctx, "c1", userMessage(fmt.Sprintf("msg-%d", i))))
	}

	history, err := svc.History(ctx, "c1", 2)
	require.NoError(t, err)
	require.Equal(t, 2, len(history))
	assert.Equal(t, "msg-3", history[0].Content)
	assert.Equal(t, "msg-4", history[1].Content)
}
