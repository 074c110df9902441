package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DatabaseURL         string
	JWTSecret           string
	JWTAccessExpiry     time.Duration
	JWTRefreshExpiry    time.Duration
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	// Reasoning engine
	LLMProvider   string // "gemini" or "ollama"
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Semantic contact search
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	// Credential sealing key (64 hex chars = 32 bytes)
	SealKey string

	// Pipeline tuning
	PipelineBatchSize     int
	PipelineWorkers       int
	SyncFullWindow        int
	SyncInterval          time.Duration
	AgentMaxTurns         int
	AgentTimeout          time.Duration
	DeletionRetentionDays int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=mailpilot port=5432 sslmode=disable"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:     getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry:    getDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		LLMProvider:   getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		SealKey: getEnv("SEAL_KEY", ""),

		PipelineBatchSize:     getInt("PIPELINE_BATCH_SIZE", 5),
		PipelineWorkers:       getInt("PIPELINE_WORKERS", 3),
		SyncFullWindow:        getInt("SYNC_FULL_WINDOW", 50),
		SyncInterval:          getDuration("SYNC_INTERVAL", 5*time.Minute),
		AgentMaxTurns:         getInt("AGENT_MAX_TURNS", 5),
		AgentTimeout:          getDuration("AGENT_TIMEOUT", 45*time.Second),
		DeletionRetentionDays: getInt("DELETION_RETENTION_DAYS", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
