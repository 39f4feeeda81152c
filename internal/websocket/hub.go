package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"doc-qa-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// Hub tracks connected websocket clients and fans conversation updates out
// to them. When Redis is configured, updates are mirrored over a pub/sub
// channel so every instance in a cluster delivers them to its own clients.
type Hub struct {
	// instance id, used to skip our own messages on the cluster channel
	id uuid.UUID

	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		id:         uuid.New(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToCluster()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.Id] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"client_id": client.Id})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.Id]; ok {
				delete(h.clients, client.Id)
				close(client.Send)
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"client_id": client.Id})
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastConversationUpdated notifies every connected client that a
// conversation changed, so list views can refresh without polling.
func (h *Hub) BroadcastConversationUpdated(payload interface{}) {
	h.broadcast("conversation_updated", payload)
}

// BroadcastConversationsCleared notifies every connected client that the
// whole store was reset.
func (h *Hub) BroadcastConversationsCleared(payload interface{}) {
	h.broadcast("conversations_cleared", payload)
}

func (h *Hub) broadcast(eventType string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		h.logger.Warn("Hub", "Failed to marshal broadcast", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliverLocal(data)

	if h.rdb != nil {
		envelope, _ := json.Marshal(clusterEnvelope{
			Origin:  h.id.String(),
			Message: data,
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, envelope).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish cluster broadcast", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliverLocal(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// slow consumer, drop it rather than block the hub
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

type clusterEnvelope struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

func (h *Hub) subscribeToCluster() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var envelope clusterEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.logger.Warn("Hub", "Failed to parse cluster message", map[string]interface{}{"error": err.Error()})
			continue
		}

		// our own publish already went out locally
		if envelope.Origin == h.id.String() {
			continue
		}

		h.deliverLocal(envelope.Message)
	}
}
