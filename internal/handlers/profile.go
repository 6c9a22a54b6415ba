package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"makab-backend/internal/middleware"
	"makab-backend/internal/models"
)

const maxNameLength = 100

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
}

type ProfileHandler struct {
	userRepo userRepository
}

func NewProfileHandler(userRepo userRepository) *ProfileHandler {
	return &ProfileHandler{userRepo: userRepo}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userRepo.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"name": "Name must be between 1 and 100 characters"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.userRepo.UpdateName(r.Context(), userID, name); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
