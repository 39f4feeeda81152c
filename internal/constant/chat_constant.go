package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"

	// Retrieval modes. The set is owned by the answer producer; the core
	// forwards the string unchanged.
	ChatModeDocumentsOnly = "documents_only"
	ChatModeAuto          = "auto"
	ChatModeHybrid        = "hybrid"
	ChatModeDefault       = ChatModeAuto

	// Conversation previews keep the first 50 runes of the latest message.
	PreviewMaxRunes = 50
	PreviewSuffix   = "..."

	// NATS subjects mirrored cross-instance.
	EventChatExchangeCompleted = "CHAT_EXCHANGE_COMPLETED"
	EventConversationsCleared  = "CONVERSATIONS_CLEARED"
	EventConversationDeleted   = "CONVERSATION_DELETED"
)
