package service

import (
	"context"
	"encoding/json"
	"log"

	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/entity"
	"doc-qa-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// ConversationNotifier pushes conversation updates to connected clients.
type ConversationNotifier interface {
	BroadcastConversationUpdated(payload interface{})
}

type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	notifier   ConversationNotifier
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	notifier ConversationNotifier,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
		notifier:   notifier,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage records an audit row for the completed exchange and fans
// the update out to websocket subscribers.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.ChatExchangeCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal exchange message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	err := uow.SystemLogRepository().Create(ctx, &entity.SystemLog{
		Level:   "info",
		Module:  "chat",
		Message: "exchange completed",
		Details: map[string]interface{}{
			"conversation_id": payload.ConversationId,
			"message_count":   payload.MessageCount,
			"source_count":    payload.SourceCount,
		},
	})
	if err != nil {
		log.Printf("[ERROR] Failed to write exchange audit log: %v", err)
		msg.Nack() // Nack for retriable errors
		return
	}

	if cs.notifier != nil {
		cs.notifier.BroadcastConversationUpdated(payload)
	}

	msg.Ack()
}
