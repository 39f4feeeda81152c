package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	OllamaBaseURL  string
	EmbeddingModel string
	LLMModel       string
}

type ChatConfig struct {
	// ExchangeCompletedTopic is the in-process topic for exchange audit
	// and fan-out.
	ExchangeCompletedTopic string
	// FragmentTimeoutSeconds bounds the wait between answer fragments.
	FragmentTimeoutSeconds int
	// HistoryLimit caps how many prior turns the producer sees.
	HistoryLimit int
	// RetrievalTopK is how many document chunks are retrieved per query.
	RetrievalTopK int
	// SessionTTLMinutes is the leak guard on abandoned stream sessions.
	SessionTTLMinutes int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMModel:       getEnv("LLM_MODEL", "llama3"),
		},
		Chat: ChatConfig{
			ExchangeCompletedTopic: getEnv("CHAT_EXCHANGE_COMPLETED_TOPIC_NAME", "CHAT_EXCHANGE_COMPLETED"),
			FragmentTimeoutSeconds: getEnvAsInt("CHAT_FRAGMENT_TIMEOUT_SECONDS", 60),
			HistoryLimit:           getEnvAsInt("CHAT_HISTORY_LIMIT", 20),
			RetrievalTopK:          getEnvAsInt("CHAT_RETRIEVAL_TOP_K", 5),
			SessionTTLMinutes:      getEnvAsInt("CHAT_SESSION_TTL_MINUTES", 60),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
