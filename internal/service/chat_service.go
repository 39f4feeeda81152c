package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"doc-qa-be/internal/apperror"
	"doc-qa-be/internal/constant"
	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/index"
	"doc-qa-be/internal/pkg/logger"
	"doc-qa-be/internal/pkg/sse"
	"doc-qa-be/internal/repository/memory"
	"doc-qa-be/pkg/answer"
	"doc-qa-be/pkg/events"
	pktNats "doc-qa-be/pkg/nats"
	"doc-qa-be/pkg/store"
)

type IChatService interface {
	// StartStream opens a session for the conversation and starts the
	// answer producer. The returned handle drives the SSE relay; the
	// caller persists the user turn via PersistQuery before draining.
	StartStream(ctx context.Context, req *dto.StreamChatRequest) (*StreamHandle, error)

	// CancelStream requests cancellation of the active session, if any.
	CancelStream(conversationId string) (*dto.CancelStreamResponse, error)

	// Send runs a full exchange without streaming and returns the
	// assembled reply. Same single-session rule as StartStream.
	Send(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error)
}

type chatService struct {
	conversations IConversationService
	producer      answer.Producer
	registry      *memory.SessionRegistry
	idx           *index.ConversationIndex
	publisher     IPublisherService
	natsPub       *pktNats.Publisher
	logger        logger.ILogger

	// fragmentTimeout bounds the wait for the next producer event
	fragmentTimeout time.Duration
	historyLimit    int
}

func NewChatService(
	conversations IConversationService,
	producer answer.Producer,
	registry *memory.SessionRegistry,
	idx *index.ConversationIndex,
	publisher IPublisherService,
	natsPub *pktNats.Publisher,
	sysLogger logger.ILogger,
	fragmentTimeout time.Duration,
	historyLimit int,
) IChatService {
	if fragmentTimeout <= 0 {
		fragmentTimeout = 60 * time.Second
	}
	return &chatService{
		conversations:   conversations,
		producer:        producer,
		registry:        registry,
		idx:             idx,
		publisher:       publisher,
		natsPub:         natsPub,
		logger:          sysLogger,
		fragmentTimeout: fragmentTimeout,
		historyLimit:    historyLimit,
	}
}

// StreamHandle is one in-flight streaming session. Drain relays producer
// events to the encoder and owns the state machine until a terminal state.
type StreamHandle struct {
	Session *store.StreamSession

	svc    *chatService
	ctx    context.Context
	events <-chan answer.Event
}

func (s *chatService) StartStream(ctx context.Context, req *dto.StreamChatRequest) (*StreamHandle, error) {
	const op = "chat.StartStream"

	mode := req.Mode
	if mode == "" {
		mode = constant.ChatModeDefault
	}

	conversationId := req.ConversationId
	if conversationId == "" {
		created, err := s.conversations.Create(ctx, "")
		if err != nil {
			return nil, err
		}
		conversationId = created.ConversationId
	} else {
		exists, err := s.conversations.Exists(ctx, conversationId)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperror.New(apperror.KindNotFound, op, "conversation not found")
		}
	}

	// The producer outlives the HTTP handler; its context is detached from
	// the request and owned by the session.
	sessionCtx, cancel := context.WithCancel(context.Background())
	session := store.NewStreamSession(conversationId, req.Message, mode, cancel)

	if err := s.registry.Acquire(session); err != nil {
		cancel()
		return nil, apperror.New(apperror.KindSessionBusy, op, "conversation already has an active stream")
	}

	history, err := s.conversations.History(ctx, conversationId, s.historyLimit)
	if err != nil {
		cancel()
		s.registry.Release(conversationId)
		return nil, err
	}

	events, err := s.producer.Produce(sessionCtx, history, req.Message, mode)
	if err != nil {
		session.Transition(store.StateFailed)
		cancel()
		s.registry.Release(conversationId)
		return nil, apperror.Wrap(apperror.KindProducerFailure, op, "failed to start answer producer", err)
	}

	return &StreamHandle{
		Session: session,
		svc:     s,
		ctx:     sessionCtx,
		events:  events,
	}, nil
}

// PersistQuery appends the user turn as an ordinary conversation write.
// It runs after the session is acquired so a busy rejection leaves the
// conversation untouched, and after the producer captured its history
// snapshot so the query is not duplicated into the prompt.
func (h *StreamHandle) PersistQuery(ctx context.Context) error {
	msg := &entity.ChatMessage{
		Role:    constant.ChatMessageRoleUser,
		Content: h.Session.Query,
	}
	return h.svc.conversations.Append(ctx, h.Session.ConversationId, msg)
}

// Abort tears the session down before any event was relayed.
func (h *StreamHandle) Abort() {
	h.Session.Cancel()
	h.Session.Transition(store.StateCancelled)
	h.svc.registry.Release(h.Session.ConversationId)
	go drainEvents(h.events)
}

// Drain relays producer events to the encoder until the session reaches a
// terminal state, then releases the conversation for the next request.
func (h *StreamHandle) Drain(enc *sse.Encoder) {
	svc := h.svc
	defer svc.registry.Release(h.Session.ConversationId)

	var assembled strings.Builder

	timer := time.NewTimer(svc.fragmentTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				h.fail(enc, "answer producer stopped unexpectedly")
				return
			}

			switch {
			case ev.Err != nil:
				if errors.Is(ev.Err, context.Canceled) {
					h.cancelled(enc)
					return
				}
				svc.logger.Error("ChatService", "Answer producer failed", map[string]interface{}{
					"conversation_id": h.Session.ConversationId,
					"error":           ev.Err.Error(),
				})
				h.fail(enc, "answer producer failed")
				return

			case ev.Final != nil:
				h.complete(enc, assembled.String(), ev.Final)
				return

			default:
				h.Session.Transition(store.StateStreaming)
				assembled.WriteString(ev.Token)
				if err := enc.WriteToken(ev.Token); err != nil {
					// client went away mid-stream
					h.Session.Cancel()
					h.Session.Transition(store.StateCancelled)
					drainEvents(h.events)
					return
				}
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(svc.fragmentTimeout)

		case <-h.ctx.Done():
			h.cancelled(enc)
			go drainEvents(h.events)
			return

		case <-timer.C:
			h.Session.Cancel()
			h.fail(enc, "timed out waiting for the next answer fragment")
			go drainEvents(h.events)
			return
		}
	}
}

// complete persists the assembled assistant turn in a single append and
// finishes the stream. A cancelled or failed session never reaches here,
// so this is the only path that writes an assistant message.
func (h *StreamHandle) complete(enc *sse.Encoder, content string, final *answer.FinalResult) {
	svc := h.svc

	msg := &entity.ChatMessage{
		Role:    constant.ChatMessageRoleAssistant,
		Content: content,
		Sources: make([]*entity.ChatSource, len(final.Sources)),
	}
	for i, src := range final.Sources {
		msg.Sources[i] = &entity.ChatSource{
			Document:  src.Document,
			Relevance: src.Relevance,
			Snippet:   src.Snippet,
		}
	}

	if err := svc.conversations.Append(context.Background(), h.Session.ConversationId, msg); err != nil {
		// the client saw the answer but the log did not take it; report
		// the divergence instead of pretending the exchange completed
		h.Session.Transition(store.StateFailed)
		svc.logger.Error("ChatService", "Failed to persist assistant message", map[string]interface{}{
			"conversation_id": h.Session.ConversationId,
			"error":           err.Error(),
		})
		enc.WriteError("answer could not be saved to the conversation")
		enc.WriteSentinel()
		return
	}

	h.Session.Transition(store.StateDone)

	sources := make([]sse.Source, len(final.Sources))
	for i, src := range final.Sources {
		sources[i] = sse.Source{
			Document:  src.Document,
			Relevance: src.Relevance,
			Snippet:   src.Snippet,
		}
	}
	enc.WriteDone(sources)
	enc.WriteSentinel()

	svc.publishExchangeCompleted(h.Session.ConversationId, len(final.Sources))
}

func (h *StreamHandle) cancelled(enc *sse.Encoder) {
	h.Session.Transition(store.StateCancelled)
	enc.WriteError("stream cancelled")
	enc.WriteSentinel()
}

func (h *StreamHandle) fail(enc *sse.Encoder, msg string) {
	h.Session.Transition(store.StateFailed)
	enc.WriteError(msg)
	enc.WriteSentinel()
}

func (s *chatService) CancelStream(conversationId string) (*dto.CancelStreamResponse, error) {
	const op = "chat.CancelStream"

	session, found := s.registry.Get(conversationId)
	if !found {
		return nil, apperror.New(apperror.KindNotFound, op, "no active stream for conversation")
	}

	session.Cancel()

	return &dto.CancelStreamResponse{
		ConversationId: conversationId,
		State:          store.StateCancelled,
	}, nil
}

func (s *chatService) Send(ctx context.Context, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	const op = "chat.Send"

	mode := req.Mode
	if mode == "" {
		mode = constant.ChatModeDefault
	}

	conversationId := req.ConversationId
	if conversationId == "" {
		created, err := s.conversations.Create(ctx, "")
		if err != nil {
			return nil, err
		}
		conversationId = created.ConversationId
	} else {
		exists, err := s.conversations.Exists(ctx, conversationId)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperror.New(apperror.KindNotFound, op, "conversation not found")
		}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	session := store.NewStreamSession(conversationId, req.Message, mode, cancel)

	if err := s.registry.Acquire(session); err != nil {
		return nil, apperror.New(apperror.KindSessionBusy, op, "conversation already has an active stream")
	}
	defer s.registry.Release(conversationId)

	history, err := s.conversations.History(ctx, conversationId, s.historyLimit)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.Append(ctx, conversationId, &entity.ChatMessage{
		Role:    constant.ChatMessageRoleUser,
		Content: req.Message,
	}); err != nil {
		return nil, err
	}

	events, err := s.producer.Produce(sessionCtx, history, req.Message, mode)
	if err != nil {
		session.Transition(store.StateFailed)
		return nil, apperror.Wrap(apperror.KindProducerFailure, op, "failed to start answer producer", err)
	}
	session.Transition(store.StateStreaming)

	var assembled strings.Builder
	timer := time.NewTimer(s.fragmentTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				session.Transition(store.StateFailed)
				return nil, apperror.New(apperror.KindProducerFailure, op, "answer producer stopped unexpectedly")
			}

			switch {
			case ev.Err != nil:
				if errors.Is(ev.Err, context.Canceled) {
					session.Transition(store.StateCancelled)
					return nil, apperror.Wrap(apperror.KindCancelled, op, "exchange cancelled", ev.Err)
				}
				session.Transition(store.StateFailed)
				return nil, apperror.Wrap(apperror.KindProducerFailure, op, "answer producer failed", ev.Err)

			case ev.Final != nil:
				msg := &entity.ChatMessage{
					Role:    constant.ChatMessageRoleAssistant,
					Content: assembled.String(),
					Sources: make([]*entity.ChatSource, len(ev.Final.Sources)),
				}
				res := &dto.SendChatResponse{
					ConversationId: conversationId,
					Reply:          assembled.String(),
					Sources:        make([]dto.SourceDTO, len(ev.Final.Sources)),
				}
				for i, src := range ev.Final.Sources {
					msg.Sources[i] = &entity.ChatSource{
						Document:  src.Document,
						Relevance: src.Relevance,
						Snippet:   src.Snippet,
					}
					res.Sources[i] = dto.SourceDTO{
						Document:  src.Document,
						Relevance: src.Relevance,
						Snippet:   src.Snippet,
					}
				}
				if err := s.conversations.Append(ctx, conversationId, msg); err != nil {
					session.Transition(store.StateFailed)
					return nil, err
				}
				session.Transition(store.StateDone)
				s.publishExchangeCompleted(conversationId, len(ev.Final.Sources))
				return res, nil

			default:
				assembled.WriteString(ev.Token)
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.fragmentTimeout)

		case <-timer.C:
			cancel()
			session.Transition(store.StateFailed)
			return nil, apperror.New(apperror.KindProducerFailure, op, "timed out waiting for the next answer fragment")
		}
	}
}

func (s *chatService) publishExchangeCompleted(conversationId string, sourceCount int) {
	payload := dto.ChatExchangeCompletedMessage{
		ConversationId: conversationId,
		SourceCount:    sourceCount,
	}
	if summary, ok := s.idx.Get(conversationId); ok {
		payload.Preview = summary.Preview
		payload.MessageCount = summary.MessageCount
	}

	if s.publisher != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		if err := s.publisher.Publish(context.Background(), data); err != nil {
			s.logger.Warn("ChatService", "Failed to publish exchange completed", map[string]interface{}{
				"conversation_id": conversationId,
				"error":           err.Error(),
			})
		}
	}

	// mirror onto the NATS bus for other instances
	if s.natsPub != nil {
		evt := events.BaseEvent{
			Type: constant.EventChatExchangeCompleted,
			Data: map[string]interface{}{
				"conversation_id": payload.ConversationId,
				"message_count":   payload.MessageCount,
				"source_count":    payload.SourceCount,
			},
			OccurredAt: time.Now(),
		}
		if err := s.natsPub.Publish(context.Background(), evt); err != nil {
			s.logger.Warn("ChatService", "Failed to publish exchange event", map[string]interface{}{
				"conversation_id": conversationId,
				"error":           err.Error(),
			})
		}
	}
}

// drainEvents empties the channel so the producer goroutine can exit after
// cancellation.
func drainEvents(events <-chan answer.Event) {
	for range events {
	}
}
