package service

import (
	"context"
	"sync"
	"time"

	"doc-qa-be/internal/apperror"
	"doc-qa-be/internal/constant"
	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/index"
	"doc-qa-be/internal/pkg/logger"
	"doc-qa-be/internal/repository/specification"
	"doc-qa-be/internal/repository/unitofwork"
	"doc-qa-be/pkg/answer"
	"doc-qa-be/pkg/events"
	pktNats "doc-qa-be/pkg/nats"

	"github.com/google/uuid"
)

type IConversationService interface {
	Create(ctx context.Context, id string) (*dto.CreateConversationResponse, error)
	Append(ctx context.Context, conversationId string, msg *entity.ChatMessage) error
	Get(ctx context.Context, conversationId string) (*dto.GetConversationResponse, error)
	List(ctx context.Context) ([]*dto.ConversationSummaryResponse, error)
	Delete(ctx context.Context, conversationId string) error
	ClearAll(ctx context.Context) (*dto.ClearConversationsResponse, error)

	// Exists reports whether the conversation is persisted, without
	// loading its history.
	Exists(ctx context.Context, conversationId string) (bool, error)
	// History returns up to limit most recent turns in producer format.
	History(ctx context.Context, conversationId string, limit int) ([]answer.Message, error)
	// WarmIndex rebuilds the list index from the repository, called once
	// at boot.
	WarmIndex(ctx context.Context) error
}

type conversationService struct {
	uowFactory unitofwork.RepositoryFactory
	idx        *index.ConversationIndex
	natsPub    *pktNats.Publisher
	logger     logger.ILogger

	// locks serializes read-modify-write per conversation id; writers on
	// different ids never block each other. ClearAll takes the write side
	// of global, every per-id operation holds the read side.
	locks  sync.Map // conversation id -> *sync.Mutex
	global sync.RWMutex
}

func NewConversationService(
	uowFactory unitofwork.RepositoryFactory,
	idx *index.ConversationIndex,
	natsPub *pktNats.Publisher,
	sysLogger logger.ILogger,
) IConversationService {
	return &conversationService{
		uowFactory: uowFactory,
		idx:        idx,
		natsPub:    natsPub,
		logger:     sysLogger,
	}
}

// lock acquires the conversation's exclusive scope. The returned function
// releases it. Locks are held only across the read-modify-write of the
// record, never across producer calls.
func (s *conversationService) lock(conversationId string) func() {
	s.global.RLock()
	m, _ := s.locks.LoadOrStore(conversationId, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
		s.global.RUnlock()
	}
}

func (s *conversationService) Create(ctx context.Context, id string) (*dto.CreateConversationResponse, error) {
	const op = "conversation.Create"

	if id == "" {
		id = uuid.NewString()
	}

	unlock := s.lock(id)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read conversation", err)
	}
	if existing != nil {
		// Duplicate create fails cleanly; the existing record is untouched.
		return nil, apperror.New(apperror.KindAlreadyExists, op, "conversation already exists")
	}

	conversation := &entity.Conversation{
		Id:          id,
		Preview:     "",
		LastUpdated: time.Now(),
	}
	if err := uow.ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to create conversation", err)
	}

	s.idx.Upsert(index.Summary{
		ConversationId: conversation.Id,
		Preview:        conversation.Preview,
		LastUpdated:    conversation.LastUpdated,
		MessageCount:   conversation.MessageCount,
	})

	return &dto.CreateConversationResponse{ConversationId: id}, nil
}

func (s *conversationService) Append(ctx context.Context, conversationId string, msg *entity.ChatMessage) error {
	const op = "conversation.Append"

	unlock := s.lock(conversationId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read conversation", err)
	}
	if conversation == nil {
		return apperror.New(apperror.KindNotFound, op, "conversation not found")
	}

	if msg.Id == uuid.Nil {
		msg.Id = uuid.New()
	}
	msg.ConversationId = conversationId
	msg.Position = conversation.MessageCount
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	// last_updated never moves backwards, even across clock adjustments
	lastUpdated := time.Now()
	if lastUpdated.Before(conversation.LastUpdated) {
		lastUpdated = conversation.LastUpdated
	}
	preview := makePreview(msg.Content)
	messageCount := conversation.MessageCount + 1

	if err := uow.Begin(ctx); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to begin transaction", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().Create(ctx, msg); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to persist message", err)
	}
	if err := uow.ConversationRepository().UpdateSummary(ctx, conversationId, preview, lastUpdated, messageCount); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to update summary", err)
	}
	if err := uow.Commit(); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to commit append", err)
	}

	// Updated under the per-id lock, so List is linearizable with appends.
	s.idx.Upsert(index.Summary{
		ConversationId: conversationId,
		Preview:        preview,
		LastUpdated:    lastUpdated,
		MessageCount:   messageCount,
	})

	return nil
}

func (s *conversationService) Get(ctx context.Context, conversationId string) (*dto.GetConversationResponse, error) {
	const op = "conversation.Get"

	unlock := s.lock(conversationId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read conversation", err)
	}
	if conversation == nil {
		return nil, apperror.New(apperror.KindNotFound, op, "conversation not found")
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderByPosition{},
	)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read messages", err)
	}

	assistantIds := make([]uuid.UUID, 0)
	for _, m := range messages {
		if m.Role == constant.ChatMessageRoleAssistant {
			assistantIds = append(assistantIds, m.Id)
		}
	}

	sources, err := uow.ChatMessageRepository().FindSourcesByMessageIds(ctx, assistantIds)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read sources", err)
	}
	sourcesByMessage := make(map[uuid.UUID][]dto.SourceDTO)
	for _, src := range sources {
		sourcesByMessage[src.ChatMessageId] = append(sourcesByMessage[src.ChatMessageId], dto.SourceDTO{
			Document:  src.Document,
			Relevance: src.Relevance,
			Snippet:   src.Snippet,
		})
	}

	res := &dto.GetConversationResponse{
		ConversationId: conversationId,
		Preview:        conversation.Preview,
		MessageCount:   conversation.MessageCount,
		Messages:       make([]*dto.ChatHistoryMessage, 0, len(messages)),
	}
	for _, m := range messages {
		res.Messages = append(res.Messages, &dto.ChatHistoryMessage{
			Id:        m.Id,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Sources:   sourcesByMessage[m.Id],
		})
	}

	return res, nil
}

func (s *conversationService) List(ctx context.Context) ([]*dto.ConversationSummaryResponse, error) {
	summaries := s.idx.List()
	result := make([]*dto.ConversationSummaryResponse, len(summaries))
	for i, sm := range summaries {
		result[i] = &dto.ConversationSummaryResponse{
			ConversationId: sm.ConversationId,
			Preview:        sm.Preview,
			LastUpdated:    sm.LastUpdated,
			MessageCount:   sm.MessageCount,
		}
	}
	return result, nil
}

func (s *conversationService) Delete(ctx context.Context, conversationId string) error {
	const op = "conversation.Delete"

	unlock := s.lock(conversationId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)

	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read conversation", err)
	}
	if conversation == nil {
		return apperror.New(apperror.KindNotFound, op, "conversation not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to begin transaction", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByConversationId(ctx, conversationId); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to delete messages", err)
	}
	if err := uow.ConversationRepository().Delete(ctx, conversationId); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to delete conversation", err)
	}
	if err := uow.Commit(); err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to commit delete", err)
	}

	s.idx.Remove(conversationId)
	s.publishEvent(ctx, constant.EventConversationDeleted, map[string]interface{}{
		"conversation_id": conversationId,
	})

	return nil
}

func (s *conversationService) ClearAll(ctx context.Context) (*dto.ClearConversationsResponse, error) {
	const op = "conversation.ClearAll"

	// Block every per-conversation writer for the duration of the reset.
	s.global.Lock()
	defer s.global.Unlock()

	cleared := s.idx.Len()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to begin transaction", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteAll(ctx); err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to clear messages", err)
	}
	if err := uow.ConversationRepository().DeleteAll(ctx); err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to clear conversations", err)
	}
	if err := uow.Commit(); err != nil {
		// Rolled back: prior state remains fully intact.
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to commit clear", err)
	}

	s.idx.Reset()
	s.locks.Range(func(key, _ interface{}) bool {
		s.locks.Delete(key)
		return true
	})

	s.publishEvent(ctx, constant.EventConversationsCleared, map[string]interface{}{
		"cleared": cleared,
	})

	return &dto.ClearConversationsResponse{Cleared: cleared}, nil
}

func (s *conversationService) Exists(ctx context.Context, conversationId string) (bool, error) {
	const op = "conversation.Exists"

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return false, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read conversation", err)
	}
	return conversation != nil, nil
}

func (s *conversationService) History(ctx context.Context, conversationId string, limit int) ([]answer.Message, error) {
	const op = "conversation.History"

	unlock := s.lock(conversationId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.OrderByPosition{},
	)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to read messages", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	history := make([]answer.Message, len(messages))
	for i, m := range messages {
		history[i] = answer.Message{Role: m.Role, Content: m.Content}
	}
	return history, nil
}

func (s *conversationService) WarmIndex(ctx context.Context) error {
	const op = "conversation.WarmIndex"

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversations, err := uow.ConversationRepository().FindAll(ctx, specification.OrderByLastUpdated{})
	if err != nil {
		return apperror.Wrap(apperror.KindStoreIOFailure, op, "failed to list conversations", err)
	}

	summaries := make([]index.Summary, len(conversations))
	for i, c := range conversations {
		summaries[i] = index.Summary{
			ConversationId: c.Id,
			Preview:        c.Preview,
			LastUpdated:    c.LastUpdated,
			MessageCount:   c.MessageCount,
		}
	}
	s.idx.Rebuild(summaries)
	return nil
}

func (s *conversationService) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.natsPub == nil {
		return
	}
	evt := events.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	if err := s.natsPub.Publish(ctx, evt); err != nil {
		s.logger.Warn("ConversationService", "Failed to publish event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func makePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= constant.PreviewMaxRunes {
		return content
	}
	return string(runes[:constant.PreviewMaxRunes]) + constant.PreviewSuffix
}
