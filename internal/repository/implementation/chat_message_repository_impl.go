package implementation

import (
	"context"

	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/mapper"
	"doc-qa-be/internal/model"
	"doc-qa-be/internal/repository/contract"
	"doc-qa-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, message *entity.ChatMessage) error {
	m := r.mapper.ChatMessageToModel(message)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}

	if len(message.Sources) > 0 {
		models := make([]*model.ChatSource, len(message.Sources))
		for i, s := range message.Sources {
			if s.Id == uuid.Nil {
				s.Id = uuid.New()
			}
			s.ChatMessageId = m.Id
			s.Position = i
			models[i] = r.mapper.ChatSourceToModel(s)
		}
		if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
			return err
		}
	}

	message.CreatedAt = m.CreatedAt
	return nil
}

func (r *ChatMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ChatMessage, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChatMessageToEntity(m)
	}
	return entities, nil
}

func (r *ChatMessageRepositoryImpl) FindSourcesByMessageIds(ctx context.Context, messageIds []uuid.UUID) ([]*entity.ChatSource, error) {
	if len(messageIds) == 0 {
		return []*entity.ChatSource{}, nil
	}

	var models []*model.ChatSource
	err := r.db.WithContext(ctx).
		Where("chat_message_id IN ?", messageIds).
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entities := make([]*entity.ChatSource, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChatSourceToEntity(m)
	}
	return entities, nil
}

func (r *ChatMessageRepositoryImpl) DeleteByConversationId(ctx context.Context, conversationId string) error {
	subQuery := r.db.Table("chat_messages").Select("id").Where("conversation_id = ?", conversationId)
	if err := r.db.WithContext(ctx).Where("chat_message_id IN (?)", subQuery).Delete(&model.ChatSource{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&model.ChatMessage{}).Error
}

func (r *ChatMessageRepositoryImpl) DeleteAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.ChatSource{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&model.ChatMessage{}).Error
}

func (r *ChatMessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
