package services

import (
	"context"
	"strings"

	"makab-backend/internal/conversation"
	"makab-backend/internal/models"
)

// RelayService validates a chat request, assembles the Makab prompt and
// forwards it to the completion provider. It keeps no state between calls.
type RelayService struct {
	completer  Completer
	maxContext int
}

func NewRelayService(completer Completer, maxContext int) *RelayService {
	return &RelayService{completer: completer, maxContext: maxContext}
}

// BuildMessages returns the provider prompt for req. The caller-supplied
// context is cut down to the configured window before assembly.
func (s *RelayService) BuildMessages(req models.ChatRequest) []models.ChatTurn {
	window := conversation.Truncate(req.Context, s.maxContext)
	return conversation.Assemble(conversation.SystemPrompt(req.WithSearch), window, req.Message)
}

func (s *RelayService) Relay(ctx context.Context, req models.ChatRequest) (string, error) {
	if err := validateChatRequest(req); err != nil {
		return "", err
	}
	return s.completer.Complete(ctx, s.BuildMessages(req))
}

func validateChatRequest(req models.ChatRequest) error {
	fieldErrors := make(map[string]string)

	if strings.TrimSpace(req.Message) == "" {
		fieldErrors["message"] = "message is required"
	}
	for _, turn := range req.Context {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			fieldErrors["context"] = `context roles must be "user" or "assistant"`
			break
		}
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{Fields: fieldErrors}
	}
	return nil
}
