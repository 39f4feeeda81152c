package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/contract"
	"doc-qa-be/internal/repository/specification"
	"doc-qa-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Store is a process-local implementation of the persistence contracts.
// Tests inject it through NewRepositoryFactory; it honors the same
// semantics as the GORM implementations, including deep-copying on read
// and write so callers never alias stored state.
type Store struct {
	mu sync.RWMutex

	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.ChatMessage
	chunks        []*entity.DocumentChunk
	logs          []*entity.SystemLog

	messageErr error // injected message-write failure, for tests
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.ChatMessage),
	}
}

// FailMessageWrites makes every subsequent message Create return err.
// Pass nil to heal the store.
func (s *Store) FailMessageWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageErr = err
}

// Logs returns the audit rows written so far.
func (s *Store) Logs() []*entity.SystemLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*entity.SystemLog(nil), s.logs...)
}

// NewRepositoryFactory returns a unitofwork.RepositoryFactory backed by the
// given in-memory store.
func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &repositoryFactory{store: store}
}

type repositoryFactory struct {
	store *Store
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

// unitOfWork over the memory store. Begin/Commit/Rollback are no-ops: the
// services serialize writes per conversation themselves, and the store's
// operations are individually atomic.
type unitOfWork struct {
	store *Store
}

func (u *unitOfWork) Begin(ctx context.Context) error { return nil }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) ConversationRepository() contract.ConversationRepository {
	return &conversationRepository{store: u.store}
}

func (u *unitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return &chatMessageRepository{store: u.store}
}

func (u *unitOfWork) DocumentChunkRepository() contract.DocumentChunkRepository {
	return &documentChunkRepository{store: u.store}
}

func (u *unitOfWork) SystemLogRepository() contract.SystemLogRepository {
	return &systemLogRepository{store: u.store}
}

// --- Conversations ---

type conversationRepository struct {
	store *Store
}

func (r *conversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *conversation
	c.Messages = nil
	r.store.conversations[c.Id] = &c
	return nil
}

func (r *conversationRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := idFromSpecs(specs)
	if !ok {
		return nil, nil
	}
	c, found := r.store.conversations[id]
	if !found {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *conversationRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	result := make([]*entity.Conversation, 0, len(r.store.conversations))
	for _, c := range r.store.conversations {
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (r *conversationRepository) UpdateSummary(ctx context.Context, id, preview string, lastUpdated time.Time, messageCount int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, found := r.store.conversations[id]
	if !found {
		return nil
	}
	c.Preview = preview
	c.LastUpdated = lastUpdated
	c.MessageCount = messageCount
	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.conversations, id)
	return nil
}

func (r *conversationRepository) DeleteAll(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.conversations = make(map[string]*entity.Conversation)
	return nil
}

func (r *conversationRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.conversations)), nil
}

// --- Messages ---

type chatMessageRepository struct {
	store *Store
}

func (r *chatMessageRepository) Create(ctx context.Context, message *entity.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.messageErr != nil {
		return r.store.messageErr
	}
	copied := copyMessage(message)
	for i, s := range copied.Sources {
		s.ChatMessageId = copied.Id
		s.Position = i
	}
	r.store.messages[message.ConversationId] = append(r.store.messages[message.ConversationId], copied)
	return nil
}

func (r *chatMessageRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	conversationId, ok := conversationIdFromSpecs(specs)
	if !ok {
		return []*entity.ChatMessage{}, nil
	}
	stored := r.store.messages[conversationId]
	result := make([]*entity.ChatMessage, len(stored))
	for i, m := range stored {
		result[i] = copyMessage(m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (r *chatMessageRepository) FindSourcesByMessageIds(ctx context.Context, messageIds []uuid.UUID) ([]*entity.ChatSource, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wanted := make(map[uuid.UUID]bool, len(messageIds))
	for _, id := range messageIds {
		wanted[id] = true
	}
	var result []*entity.ChatSource
	for _, msgs := range r.store.messages {
		for _, m := range msgs {
			if !wanted[m.Id] {
				continue
			}
			for _, s := range m.Sources {
				copied := *s
				result = append(result, &copied)
			}
		}
	}
	return result, nil
}

func (r *chatMessageRepository) DeleteByConversationId(ctx context.Context, conversationId string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.messages, conversationId)
	return nil
}

func (r *chatMessageRepository) DeleteAll(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.messages = make(map[string][]*entity.ChatMessage)
	return nil
}

func (r *chatMessageRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if conversationId, ok := conversationIdFromSpecs(specs); ok {
		return int64(len(r.store.messages[conversationId])), nil
	}
	var total int64
	for _, msgs := range r.store.messages {
		total += int64(len(msgs))
	}
	return total, nil
}

// --- Document chunks ---

type documentChunkRepository struct {
	store *Store
}

func (r *documentChunkRepository) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range chunks {
		copied := *c
		copied.Embedding = append([]float32(nil), c.Embedding...)
		r.store.chunks = append(r.store.chunks, &copied)
	}
	return nil
}

func (r *documentChunkRepository) FindNearest(ctx context.Context, embedding []float32, limit int) ([]*entity.ScoredChunk, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	scored := make([]*entity.ScoredChunk, 0, len(r.store.chunks))
	for _, c := range r.store.chunks {
		copied := *c
		copied.Embedding = append([]float32(nil), c.Embedding...)
		scored = append(scored, &entity.ScoredChunk{
			Chunk:    &copied,
			Distance: cosineDistance(embedding, c.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (r *documentChunkRepository) DeleteByDocument(ctx context.Context, document string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.chunks[:0]
	for _, c := range r.store.chunks {
		if c.Document != document {
			kept = append(kept, c)
		}
	}
	r.store.chunks = kept
	return nil
}

// --- System logs ---

type systemLogRepository struct {
	store *Store
}

func (r *systemLogRepository) Create(ctx context.Context, log *entity.SystemLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *log
	r.store.logs = append(r.store.logs, &copied)
	return nil
}

// --- helpers ---

func copyMessage(m *entity.ChatMessage) *entity.ChatMessage {
	copied := *m
	copied.Sources = make([]*entity.ChatSource, len(m.Sources))
	for i, s := range m.Sources {
		sc := *s
		copied.Sources[i] = &sc
	}
	return &copied
}

func idFromSpecs(specs []specification.Specification) (string, bool) {
	for _, spec := range specs {
		if byID, ok := spec.(specification.ByID); ok {
			if id, ok := byID.ID.(string); ok {
				return id, true
			}
		}
	}
	return "", false
}

func conversationIdFromSpecs(specs []specification.Specification) (string, bool) {
	for _, spec := range specs {
		if byConv, ok := spec.(specification.ByConversationID); ok {
			return byConv.ConversationID, true
		}
	}
	return "", false
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}
