package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RatingUp   = "up"
	RatingDown = "down"
)

// Message is a persisted chat turn owned by a user.
type Message struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Rating    *string   `json:"rating"` // "up" | "down" | null
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"-"`
}

type RateMessageRequest struct {
	Rating *string `json:"rating"`
}

type MessageListResponse struct {
	Messages []*Message `json:"messages"`
}
