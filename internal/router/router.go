package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"makab-backend/internal/handlers"
	"makab-backend/internal/middleware"
	"makab-backend/internal/websocket"
)

// Limits holds the per-IP request budgets of the public routes.
type Limits struct {
	AuthPerMinute  int
	RelayPerMinute int
}

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	relayHandler *handlers.RelayHandler,
	chatHandler *handlers.ChatHandler,
	profileHandler *handlers.ProfileHandler,
	wsHub *websocket.Hub,
	allowedOrigin string,
	limits Limits,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(allowedOrigin))

	authLimiter := middleware.NewRateLimiter(limits.AuthPerMinute, time.Minute)
	relayLimiter := middleware.NewRateLimiter(limits.RelayPerMinute, time.Minute).WithReject(relayHandler.RateLimited)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Completion relay (public, stateless) ────
	// Mounted for every method so the handler answers non-POST calls itself.
	relay := relayLimiter.Middleware(relayHandler)
	r.Handle("/functions/v1/ai-chat", relay)

	r.Route("/api/v1", func(r chi.Router) {
		r.Handle("/chat", relay)

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Profile Routes ────
		r.Route("/profile", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
		})

		// ──── Chat History Routes ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/chat/send", chatHandler.Send)

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", chatHandler.List)
				r.Delete("/", chatHandler.Clear)
				r.Delete("/{id}", chatHandler.Delete)
				r.Put("/{id}/rating", chatHandler.Rate)
				r.Post("/{id}/regenerate", chatHandler.Regenerate)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
