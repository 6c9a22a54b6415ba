package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"makab-backend/internal/conversation"
	"makab-backend/internal/log"
	"makab-backend/internal/models"
)

const maxHistoryPage = 200

// MessageStore is the slice of the message repository the chat service uses.
type MessageStore interface {
	CreateExchange(ctx context.Context, userMsg, assistantMsg *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, newestFirst bool) ([]*models.Message, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Message, error)
	ListBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64, limit int) ([]*models.Message, error)
	LatestUserBefore(ctx context.Context, userID uuid.UUID, beforeSeq int64) (*models.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
	SetRating(ctx context.Context, id uuid.UUID, rating *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Publisher fans history changes out to the user's open sessions.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event models.WSMessage) error
}

// ChatService is the authenticated chat: it keeps each user's transcript and
// builds the context window from stored history.
type ChatService struct {
	messages   MessageStore
	completer  Completer
	publisher  Publisher
	maxContext int
	pageSize   int
}

func NewChatService(messages MessageStore, completer Completer, publisher Publisher, maxContext, pageSize int) *ChatService {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &ChatService{
		messages:   messages,
		completer:  completer,
		publisher:  publisher,
		maxContext: maxContext,
		pageSize:   pageSize,
	}
}

// Send completes a new message against the stored history and persists the
// exchange. Nothing is stored when the provider fails.
func (s *ChatService) Send(ctx context.Context, userID uuid.UUID, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &ValidationError{Fields: map[string]string{"message": "message is required"}}
	}

	recent, err := s.messages.ListRecent(ctx, userID, s.historyLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	window := conversation.Window(conversation.FromMessages(recent), s.maxContext)
	prompt := conversation.Assemble(conversation.SystemPrompt(req.WithSearch), window, req.Message)

	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{UserID: userID, Content: req.Message, IsUser: true}
	assistantMsg := &models.Message{UserID: userID, Content: reply, IsUser: false}
	if err := s.messages.CreateExchange(ctx, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store exchange: %w", err)
	}

	s.publish(ctx, userID, models.WSMessageCreated, userMsg)
	s.publish(ctx, userID, models.WSMessageCreated, assistantMsg)

	return &models.SendMessageResponse{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// Regenerate replaces an assistant reply with a fresh completion of the user
// message that prompted it. The earlier rating is dropped.
func (s *ChatService) Regenerate(ctx context.Context, userID, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.regenerationTranscript(ctx, userID, msg)
	if err != nil {
		return nil, err
	}

	userText, window, err := conversation.RegenerationContext(transcript, len(transcript)-1, s.maxContext)
	if err != nil {
		return nil, regenerationError(err)
	}

	reply, err := s.completer.Complete(ctx, conversation.Assemble(conversation.SystemPrompt(false), window, userText))
	if err != nil {
		return nil, err
	}

	if err := s.messages.UpdateContent(ctx, msg.ID, reply); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	msg.Content = reply
	msg.Rating = nil

	s.publish(ctx, userID, models.WSMessageUpdated, msg)
	return msg, nil
}

// Rate sets the rating of an assistant message. Rating with the value already
// set, or with nil, clears it.
func (s *ChatService) Rate(ctx context.Context, userID, messageID uuid.UUID, rating *string) (*models.Message, error) {
	if rating != nil && *rating != models.RatingUp && *rating != models.RatingDown {
		return nil, &ValidationError{Fields: map[string]string{"rating": `rating must be "up", "down" or null`}}
	}

	msg, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsUser {
		return nil, &ValidationError{Fields: map[string]string{"rating": "only assistant messages can be rated"}}
	}

	if rating != nil && msg.Rating != nil && *msg.Rating == *rating {
		rating = nil
	}

	if err := s.messages.SetRating(ctx, msg.ID, rating); err != nil {
		return nil, fmt.Errorf("failed to rate message: %w", err)
	}
	msg.Rating = rating

	s.publish(ctx, userID, models.WSMessageUpdated, msg)
	return msg, nil
}

// List returns up to limit messages. limit <= 0 uses the configured page
// size; values above 200 are capped.
func (s *ChatService) List(ctx context.Context, userID uuid.UUID, limit int, newestFirst bool) ([]*models.Message, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	return s.messages.ListByUser(ctx, userID, limit, newestFirst)
}

func (s *ChatService) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.publish(ctx, userID, models.WSMessageDeleted, models.MessageDeletedEvent{MessageID: msg.ID})
	return nil
}

// Clear removes the whole transcript and reports how many messages went.
func (s *ChatService) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.messages.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}

	s.publish(ctx, userID, models.WSHistoryCleared, nil)
	return n, nil
}

// historyLimit is how many stored turns to load for a context window.
// Without a window bound the newest page is used.
func (s *ChatService) historyLimit() int {
	if s.maxContext <= 0 {
		return maxHistoryPage
	}
	return s.maxContext
}

// regenerationTranscript ends with msg and, for an assistant reply, holds its
// paired user turn plus the window of turns stored before that user turn.
// Deleted turns in between do not shrink the window.
func (s *ChatService) regenerationTranscript(ctx context.Context, userID uuid.UUID, msg *models.Message) ([]conversation.Turn, error) {
	current := conversation.Turn{Content: msg.Content, IsUser: msg.IsUser}
	if msg.IsUser {
		return []conversation.Turn{current}, nil
	}

	paired, err := s.messages.LatestUserBefore(ctx, userID, msg.Seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []conversation.Turn{current}, nil
		}
		return nil, fmt.Errorf("failed to load paired message: %w", err)
	}

	before, err := s.messages.ListBefore(ctx, userID, paired.Seq, s.historyLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	transcript := conversation.FromMessages(before)
	transcript = append(transcript, conversation.Turn{Content: paired.Content, IsUser: true}, current)
	return transcript, nil
}

func regenerationError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotAssistantTurn):
		return &ValidationError{Fields: map[string]string{"message": "only assistant messages can be regenerated"}}
	case errors.Is(err, conversation.ErrNoPairedUserTurn):
		return &ValidationError{Fields: map[string]string{"message": "message has no user prompt to regenerate from"}}
	case errors.Is(err, conversation.ErrPositionOutOfRange):
		return &NotFoundError{Message: "Message not found"}
	}
	return err
}

// ownedMessage loads a message and hides other users' messages as not found.
func (s *ChatService) ownedMessage(ctx context.Context, userID, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Message not found"}
		}
		return nil, err
	}
	if msg.UserID != userID {
		return nil, &NotFoundError{Message: "Message not found"}
	}
	return msg, nil
}

// publish is best effort: live updates never fail the request.
func (s *ChatService) publish(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	event := models.WSMessage{Type: eventType, Payload: payload}
	if err := s.publisher.Publish(ctx, userID, event); err != nil {
		log.Warnw("failed to publish chat event", "user_id", userID, "type", eventType, "error", err)
	}
}
