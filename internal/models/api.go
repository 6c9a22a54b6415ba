package models

import "github.com/google/uuid"

// WebSocket message types
const (
	WSMessageCreated = "message_created"
	WSMessageUpdated = "message_updated"
	WSMessageDeleted = "message_deleted"
	WSHistoryCleared = "history_cleared"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type MessageDeletedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
