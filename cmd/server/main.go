package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"makab-backend/internal/config"
	"makab-backend/internal/database"
	"makab-backend/internal/handlers"
	"makab-backend/internal/log"
	"makab-backend/internal/middleware"
	"makab-backend/internal/repository"
	"makab-backend/internal/router"
	"makab-backend/internal/services"
	"makab-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Init(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	log.Info("🚀 Starting Makab Backend...")
	log.Infow("✓ Environment loaded", "env", cfg.Env, "provider", cfg.Provider)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Info("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(context.Background(), pool, database.DefaultMigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	if err := database.VerifySchema(context.Background(), pool); err != nil {
		log.Fatalf("✗ Database schema check failed: %v", err)
	}
	log.Info("✓ Database migrations applied")

	// ──── Step 5: Initialize Completion Provider ────
	var provider services.Completer
	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := services.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		provider = gemini
		log.Infow("✓ Gemini client initialized", "model", cfg.GeminiModel)
	default:
		provider = services.NewOpenRouterClient(services.OpenRouterConfig{
			APIKey:      cfg.OpenRouterAPIKey,
			BaseURL:     cfg.OpenRouterBaseURL,
			Model:       cfg.OpenRouterModel,
			Referer:     cfg.OpenRouterReferer,
			Title:       cfg.OpenRouterTitle,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.ProviderTimeout,
		})
		log.Infow("✓ OpenRouter client initialized", "model", cfg.OpenRouterModel)
	}
	completer := services.NewCompletionService(provider, cfg.ProviderTimeout, cfg.ProviderMaxRetries, cfg.ProviderConcurrentReq)

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	publisher := websocket.NewRedisPublisher(redisClients.Store)
	authService := services.NewAuthService(userRepo, redisClients.Store, jwtAuth)
	relayService := services.NewRelayService(completer, cfg.MaxContextTurns)
	chatService := services.NewChatService(messageRepo, completer, publisher, cfg.MaxContextTurns, cfg.HistoryPageSize)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	relayHandler := handlers.NewRelayHandler(relayService, cfg.AllowedOrigin)
	chatHandler := handlers.NewChatHandler(chatService)
	profileHandler := handlers.NewProfileHandler(userRepo)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Info("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		relayHandler,
		chatHandler,
		profileHandler,
		wsHub,
		cfg.AllowedOrigin,
		router.Limits{AuthPerMinute: 10, RelayPerMinute: cfg.RelayRatePerMin},
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Long enough for a provider call plus its retries.
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		wsHub.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", err)
		}
	}()

	log.Infof("✓ Makab Backend ready on http://localhost:%s", cfg.Port)
	log.Infof("  Relay: http://localhost:%s/functions/v1/ai-chat", cfg.Port)
	log.Infof("  API:   http://localhost:%s/api/v1", cfg.Port)
	log.Infof("  WS:    ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
