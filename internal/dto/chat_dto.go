package dto

type StreamChatRequest struct {
	ConversationId string `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
	Message        string `json:"message" validate:"required"`
	// Mode is opaque to the transport; the answer producer owns the set.
	Mode string `json:"mode,omitempty" validate:"omitempty,max=64"`
}

type SendChatRequest struct {
	ConversationId string `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
	Message        string `json:"message" validate:"required"`
	Mode           string `json:"mode,omitempty" validate:"omitempty,max=64"`
}

type SendChatResponse struct {
	ConversationId string      `json:"conversation_id"`
	Reply          string      `json:"reply"`
	Sources        []SourceDTO `json:"sources,omitempty"`
}

type SourceDTO struct {
	Document  string  `json:"document"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet,omitempty"`
}

type CancelStreamResponse struct {
	ConversationId string `json:"conversation_id"`
	State          string `json:"state"`
}

// ChatExchangeCompletedMessage is the watermill payload published after a
// completed exchange is persisted.
type ChatExchangeCompletedMessage struct {
	ConversationId string `json:"conversation_id"`
	Preview        string `json:"preview"`
	MessageCount   int    `json:"message_count"`
	SourceCount    int    `json:"source_count"`
}
