package bootstrap

import (
	"context"
	"log"
	"time"

	"doc-qa-be/internal/config"
	"doc-qa-be/internal/controller"
	"doc-qa-be/internal/index"
	"doc-qa-be/internal/pkg/logger"
	"doc-qa-be/internal/repository/memory"
	"doc-qa-be/internal/repository/unitofwork"
	"doc-qa-be/internal/service"
	"doc-qa-be/internal/websocket"
	"doc-qa-be/pkg/answer/ragproducer"
	"doc-qa-be/pkg/embedding"
	"doc-qa-be/pkg/llm/ollama"

	pktNats "doc-qa-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ConversationController controller.IConversationController
	ChatController         controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. AI Providers
	embeddingProvider := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.EmbeddingModel,
	)
	log.Printf("[INFO] Using Embedding Model: %s", cfg.Ai.EmbeddingModel)

	llmProvider := ollama.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.LLMModel)
	log.Printf("[INFO] Using LLM Model: %s", cfg.Ai.LLMModel)

	// 4. Services
	publisherService := service.NewPublisherService(cfg.Chat.ExchangeCompletedTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Chat.ExchangeCompletedTopic,
		uowFactory,
		wsHub,
	)

	idx := index.New()
	conversationService := service.NewConversationService(uowFactory, idx, natsPub, sysLogger)
	if err := conversationService.WarmIndex(context.Background()); err != nil {
		log.Printf("[WARN] Failed to warm conversation index: %v", err)
	}

	sessionRegistry := memory.NewSessionRegistry(time.Duration(cfg.Chat.SessionTTLMinutes) * time.Minute)

	producer := ragproducer.New(uowFactory, embeddingProvider, llmProvider, cfg.Chat.RetrievalTopK)

	chatService := service.NewChatService(
		conversationService,
		producer,
		sessionRegistry,
		idx,
		publisherService,
		natsPub,
		sysLogger,
		time.Duration(cfg.Chat.FragmentTimeoutSeconds)*time.Second,
		cfg.Chat.HistoryLimit,
	)

	// 5. Controllers
	return &Container{
		ConversationController: controller.NewConversationController(conversationService, wsHub),
		ChatController:         controller.NewChatController(chatService),

		ConsumerService: consumerService,

		WebSocketHub: wsHub,
	}
}
