package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"doc-qa-be/internal/apperror"
	"doc-qa-be/internal/constant"
	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/index"
	"doc-qa-be/internal/pkg/sse"
	"doc-qa-be/internal/repository/memory"
	"doc-qa-be/pkg/answer"
	"doc-qa-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer replays a scripted event stream. When block is set it holds
// the stream open until the channel is closed or the context is cancelled.
type fakeProducer struct {
	tokens   []string
	sources  []answer.Source
	err      error
	startErr error
	block    chan struct{}

	gotHistory []answer.Message
	gotQuery   string
	gotMode    string
}

func (f *fakeProducer) Produce(ctx context.Context, history []answer.Message, query, mode string) (<-chan answer.Event, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.gotHistory = history
	f.gotQuery = query
	f.gotMode = mode

	out := make(chan answer.Event)
	go func() {
		defer close(out)
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				out <- answer.Event{Err: ctx.Err()}
				return
			}
		}
		for _, tok := range f.tokens {
			select {
			case out <- answer.Event{Token: tok}:
			case <-ctx.Done():
				out <- answer.Event{Err: ctx.Err()}
				return
			}
		}
		if f.err != nil {
			out <- answer.Event{Err: f.err}
			return
		}
		out <- answer.Event{Final: &answer.FinalResult{Sources: f.sources}}
	}()
	return out, nil
}

type chatFixture struct {
	chat     IChatService
	conv     IConversationService
	store    *memory.Store
	producer *fakeProducer
}

func newChatFixture(producer *fakeProducer) *chatFixture {
	st := memory.NewStore()
	idx := index.New()
	conv := NewConversationService(memory.NewRepositoryFactory(st), idx, nil, nopLogger{})
	registry := memory.NewSessionRegistry(time.Minute)
	chat := NewChatService(conv, producer, registry, idx, nil, nil, nopLogger{}, 250*time.Millisecond, 10)
	return &chatFixture{chat: chat, conv: conv, store: st, producer: producer}
}

func drainToBuffer(handle *StreamHandle) *bytes.Buffer {
	var buf bytes.Buffer
	handle.Drain(sse.NewEncoder(bufio.NewWriter(&buf)))
	return &buf
}

func sseRecords(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
}

func TestStreamCompletesAndPersistsOneExchange(t *testing.T) {
	f := newChatFixture(&fakeProducer{
		tokens: []string{"Greetings", " from", " docs"},
		sources: []answer.Source{
			{Document: "guide.md", Relevance: 0.91, Snippet: "excerpt"},
		},
	})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{
		ConversationId: "c1",
		Message:        "hello",
	})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))

	buf := drainToBuffer(handle)

	assert.Equal(t, store.StateDone, handle.Session.State())

	records := sseRecords(buf)
	require.Equal(t, 5, len(records))
	assert.Equal(t, `data: {"token":"Greetings"}`, records[0])
	assert.Equal(t, `data: {"token":" from"}`, records[1])
	assert.Equal(t, `data: {"token":" docs"}`, records[2])
	assert.Contains(t, records[3], `"done":true`)
	assert.Contains(t, records[3], `"document":"guide.md"`)
	assert.Equal(t, "data: [DONE]", records[4])

	// exactly two messages: the query and the single assembled answer
	got, err := f.conv.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, got.MessageCount)
	assert.Equal(t, constant.ChatMessageRoleUser, got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, constant.ChatMessageRoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "Greetings from docs", got.Messages[1].Content)
	require.Equal(t, 1, len(got.Messages[1].Sources))
	assert.Equal(t, "guide.md", got.Messages[1].Sources[0].Document)

	// the list preview reflects the assistant reply
	list, err := f.conv.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(list))
	assert.Equal(t, "Greetings from docs", list[0].Preview)
	assert.Equal(t, 2, list[0].MessageCount)
}

func TestStreamHistoryExcludesCurrentQuery(t *testing.T) {
	f := newChatFixture(&fakeProducer{tokens: []string{"ok"}})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, f.conv.Append(ctx, "c1", userMessage("earlier question")))

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{
		ConversationId: "c1",
		Message:        "current question",
	})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))
	drainToBuffer(handle)

	require.Equal(t, 1, len(f.producer.gotHistory))
	assert.Equal(t, "earlier question", f.producer.gotHistory[0].Content)
	assert.Equal(t, "current question", f.producer.gotQuery)
}

func TestStartStreamUnknownConversation(t *testing.T) {
	f := newChatFixture(&fakeProducer{})

	_, err := f.chat.StartStream(context.Background(), &dto.StreamChatRequest{
		ConversationId: "ghost",
		Message:        "hello",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestStartStreamCreatesConversationWhenIdOmitted(t *testing.T) {
	f := newChatFixture(&fakeProducer{tokens: []string{"hi"}})
	ctx := context.Background()

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.Session.ConversationId)
	require.NoError(t, handle.PersistQuery(ctx))
	drainToBuffer(handle)

	got, err := f.conv.Get(ctx, handle.Session.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
}

func TestSecondStreamOnSameConversationIsBusy(t *testing.T) {
	block := make(chan struct{})
	f := newChatFixture(&fakeProducer{tokens: []string{"slow"}, block: block})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	first, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "one"})
	require.NoError(t, err)

	_, err = f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "two"})
	assert.True(t, apperror.IsKind(err, apperror.KindSessionBusy))

	// finishing the first stream frees the conversation
	close(block)
	drainToBuffer(first)

	second, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "two"})
	require.NoError(t, err)
	drainToBuffer(second)
}

func TestCancelStreamPersistsNoAnswer(t *testing.T) {
	f := newChatFixture(&fakeProducer{tokens: []string{"never"}, block: make(chan struct{})})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))

	done := make(chan *bytes.Buffer, 1)
	go func() { done <- drainToBuffer(handle) }()

	// give the drain loop a moment to start waiting
	time.Sleep(20 * time.Millisecond)

	ack, err := f.chat.CancelStream("c1")
	require.NoError(t, err)
	assert.Equal(t, store.StateCancelled, ack.State)

	buf := <-done
	assert.Equal(t, store.StateCancelled, handle.Session.State())

	records := sseRecords(buf)
	assert.Contains(t, records[len(records)-2], `"error"`)
	assert.Equal(t, "data: [DONE]", records[len(records)-1])

	// the user turn stays, no assistant message was written
	got, err := f.conv.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, got.MessageCount)
	assert.Equal(t, constant.ChatMessageRoleUser, got.Messages[0].Role)
}

func TestCancelStreamWithoutActiveSession(t *testing.T) {
	f := newChatFixture(&fakeProducer{})

	_, err := f.chat.CancelStream("idle")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestProducerFailureMidStream(t *testing.T) {
	f := newChatFixture(&fakeProducer{
		tokens: []string{"partial"},
		err:    errors.New("model exploded"),
	})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))

	buf := drainToBuffer(handle)

	assert.Equal(t, store.StateFailed, handle.Session.State())

	records := sseRecords(buf)
	assert.Contains(t, records[len(records)-2], `"error"`)
	assert.Equal(t, "data: [DONE]", records[len(records)-1])

	got, err := f.conv.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
}

func TestProducerStartFailure(t *testing.T) {
	f := newChatFixture(&fakeProducer{startErr: errors.New("no embeddings")})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	_, err = f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	assert.True(t, apperror.IsKind(err, apperror.KindProducerFailure))

	// the failed start released the session
	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	assert.True(t, apperror.IsKind(err, apperror.KindProducerFailure))
	assert.Nil(t, handle)
}

func TestFragmentTimeoutFailsSession(t *testing.T) {
	f := newChatFixture(&fakeProducer{block: make(chan struct{})})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))

	buf := drainToBuffer(handle)

	assert.Equal(t, store.StateFailed, handle.Session.State())
	records := sseRecords(buf)
	assert.Contains(t, records[len(records)-2], "timed out")
	assert.Equal(t, "data: [DONE]", records[len(records)-1])
}

func TestPersistFailureAfterDeliveryReportsDivergence(t *testing.T) {
	f := newChatFixture(&fakeProducer{tokens: []string{"answer"}})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, handle.PersistQuery(ctx))

	f.store.FailMessageWrites(errors.New("disk full"))
	buf := drainToBuffer(handle)
	f.store.FailMessageWrites(nil)

	assert.Equal(t, store.StateFailed, handle.Session.State())

	records := sseRecords(buf)
	// the answer streamed out, then the failure to save it is reported
	assert.Equal(t, `data: {"token":"answer"}`, records[0])
	assert.Contains(t, records[len(records)-2], "could not be saved")
	assert.Equal(t, "data: [DONE]", records[len(records)-1])

	got, err := f.conv.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
}

func TestSendExchange(t *testing.T) {
	f := newChatFixture(&fakeProducer{
		tokens:  []string{"The ", "reply"},
		sources: []answer.Source{{Document: "guide.md", Relevance: 0.8}},
	})
	ctx := context.Background()

	res, err := f.chat.Send(ctx, &dto.SendChatRequest{Message: "hello", Mode: constant.ChatModeHybrid})
	require.NoError(t, err)
	assert.Equal(t, "The reply", res.Reply)
	require.Equal(t, 1, len(res.Sources))
	assert.Equal(t, "guide.md", res.Sources[0].Document)
	assert.Equal(t, constant.ChatModeHybrid, f.producer.gotMode)

	got, err := f.conv.Get(ctx, res.ConversationId)
	require.NoError(t, err)
	require.Equal(t, 2, got.MessageCount)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "The reply", got.Messages[1].Content)
}

func TestSendBusyWhileStreaming(t *testing.T) {
	block := make(chan struct{})
	f := newChatFixture(&fakeProducer{tokens: []string{"slow"}, block: block})
	ctx := context.Background()

	_, err := f.conv.Create(ctx, "c1")
	require.NoError(t, err)

	handle, err := f.chat.StartStream(ctx, &dto.StreamChatRequest{ConversationId: "c1", Message: "one"})
	require.NoError(t, err)

	_, err = f.chat.Send(ctx, &dto.SendChatRequest{ConversationId: "c1", Message: "two"})
	assert.True(t, apperror.IsKind(err, apperror.KindSessionBusy))

	close(block)
	drainToBuffer(handle)
}
