package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"makab-backend/internal/log"
	"makab-backend/internal/middleware"
	"makab-backend/internal/models"
	"makab-backend/internal/services"
)

const (
	relayFailure        = "Failed to get AI response"
	relayInvalidRequest = "Invalid request"
	maxRelayBodyBytes   = 1 << 20
)

type relayService interface {
	Relay(ctx context.Context, req models.ChatRequest) (string, error)
}

// RelayHandler is the public completion relay. It takes the whole
// conversation from the caller and stores nothing.
type RelayHandler struct {
	relay  relayService
	origin string
}

func NewRelayHandler(relay relayService, origin string) *RelayHandler {
	if origin == "" {
		origin = "*"
	}
	return &RelayHandler{relay: relay, origin: origin}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SetCORSHeaders(w.Header(), h.origin)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeRelayError(w, http.StatusMethodNotAllowed, relayInvalidRequest, "method not allowed")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBodyBytes)).Decode(&req); err != nil {
		writeRelayError(w, http.StatusBadRequest, relayInvalidRequest, "request body must be a JSON object")
		return
	}

	reply, err := h.relay.Relay(r.Context(), req)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			writeRelayError(w, http.StatusBadRequest, relayInvalidRequest, verr.Detail())
			return
		}

		log.Errorw("relay completion failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"context_turns", len(req.Context),
			"with_search", req.WithSearch,
			"error", err,
		)
		writeRelayError(w, http.StatusInternalServerError, relayFailure, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: reply})
}

// RateLimited answers a throttled relay call in the relay's own error shape.
func (h *RelayHandler) RateLimited(w http.ResponseWriter, r *http.Request) {
	middleware.SetCORSHeaders(w.Header(), h.origin)
	writeRelayError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, try again in a minute")
}

func writeRelayError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, models.RelayErrorResponse{Error: message, Details: details})
}
