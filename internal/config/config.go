package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Completion provider
	Provider              string
	OpenRouterAPIKey      string
	OpenRouterBaseURL     string
	OpenRouterModel       string
	OpenRouterReferer     string
	OpenRouterTitle       string
	GeminiAPIKey          string
	GeminiModel           string
	Temperature           float64
	MaxTokens             int
	ProviderTimeout       time.Duration
	ProviderMaxRetries    int
	ProviderConcurrentReq int

	// Chat
	MaxContextTurns int
	HistoryPageSize int
	RelayRatePerMin int
	AllowedOrigin   string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		DatabaseURL:           mustGetEnv("DATABASE_URL"),
		RedisURL:              mustGetEnv("REDIS_URL"),
		JWTSecret:             mustGetEnv("JWT_SECRET"),
		Provider:              getEnvOrDefault("PROVIDER", ProviderOpenRouter),
		OpenRouterBaseURL:     getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:       getEnvOrDefault("OPENROUTER_MODEL", "meta-llama/llama-3.3-8b-instruct:free"),
		OpenRouterReferer:     getEnvOrDefault("OPENROUTER_REFERER", "https://makab-chat.lovable.app"),
		OpenRouterTitle:       getEnvOrDefault("OPENROUTER_TITLE", "Makab - AI Chat Assistant"),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature:           getEnvAsFloatOrDefault("PROVIDER_TEMPERATURE", 0.7),
		MaxTokens:             getEnvAsIntOrDefault("PROVIDER_MAX_TOKENS", 1000),
		ProviderTimeout:       time.Duration(getEnvAsIntOrDefault("PROVIDER_TIMEOUT_SECONDS", 60)) * time.Second,
		ProviderMaxRetries:    getEnvAsIntOrDefault("PROVIDER_MAX_RETRIES", 2),
		ProviderConcurrentReq: getEnvAsIntOrDefault("PROVIDER_CONCURRENT_REQUESTS", 5),
		MaxContextTurns:       getEnvAsIntOrDefault("MAX_CONTEXT_TURNS", 6),
		HistoryPageSize:       getEnvAsIntOrDefault("HISTORY_PAGE_SIZE", 20),
		RelayRatePerMin:       getEnvAsIntOrDefault("RELAY_REQUESTS_PER_MINUTE", 30),
		AllowedOrigin:         getEnvOrDefault("ALLOWED_ORIGIN", "*"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "json"),
	}

	// The provider credential is checked here so a misconfigured deployment
	// fails at startup instead of on the first chat request.
	switch cfg.Provider {
	case ProviderOpenRouter:
		cfg.OpenRouterAPIKey = mustGetEnv("OPENROUTER_API_KEY")
	case ProviderGemini:
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	default:
		panic(fmt.Sprintf("unsupported PROVIDER %q (expected %q or %q)", cfg.Provider, ProviderOpenRouter, ProviderGemini))
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
