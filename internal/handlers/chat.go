package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"makab-backend/internal/middleware"
	"makab-backend/internal/models"
)

type chatService interface {
	Send(ctx context.Context, userID uuid.UUID, req models.SendMessageRequest) (*models.SendMessageResponse, error)
	Regenerate(ctx context.Context, userID, messageID uuid.UUID) (*models.Message, error)
	Rate(ctx context.Context, userID, messageID uuid.UUID, rating *string) (*models.Message, error)
	List(ctx context.Context, userID uuid.UUID, limit int, newestFirst bool) ([]*models.Message, error)
	Delete(ctx context.Context, userID, messageID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ChatHandler struct {
	chat chatService
}

func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	resp, err := h.chat.Send(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *ChatHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	msg, err := h.chat.Regenerate(r.Context(), middleware.GetUserID(r.Context()), messageID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) Rate(w http.ResponseWriter, r *http.Request) {
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	var req models.RateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	msg, err := h.chat.Rate(r.Context(), middleware.GetUserID(r.Context()), messageID, req.Rating)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be a positive integer", r))
			return
		}
		limit = n
	}

	newestFirst := true
	switch r.URL.Query().Get("order") {
	case "", "desc":
	case "asc":
		newestFirst = false
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", `order must be "asc" or "desc"`, r))
		return
	}

	msgs, err := h.chat.List(r.Context(), middleware.GetUserID(r.Context()), limit, newestFirst)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageListResponse{Messages: msgs})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	if err := h.chat.Delete(r.Context(), middleware.GetUserID(r.Context()), messageID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}

func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.chat.Clear(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "History cleared",
		"deleted": n,
	})
}

func messageIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid message ID", r))
		return uuid.Nil, false
	}
	return id, true
}
