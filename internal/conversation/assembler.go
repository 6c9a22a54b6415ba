// Package conversation shapes chat transcripts into provider prompts: it picks
// the bounded context window, builds the Makab system prompt and assembles the
// final ordered message list.
package conversation

import (
	"errors"

	"makab-backend/internal/models"
)

// DefaultWindow is the number of prior turns (three exchanges) sent as context.
const DefaultWindow = 6

var (
	ErrPositionOutOfRange = errors.New("transcript position out of range")
	ErrNotAssistantTurn   = errors.New("only assistant turns can be regenerated")
	ErrNoPairedUserTurn   = errors.New("assistant turn has no preceding user turn")
)

// Turn is one transcript entry as the UI and the message store see it.
type Turn struct {
	Content string
	IsUser  bool
}

// FromMessages converts stored messages into transcript turns, keeping order.
func FromMessages(msgs []*models.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Content: m.Content, IsUser: m.IsUser})
	}
	return turns
}

// Project maps transcript turns onto provider roles.
func Project(turns []Turn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		role := models.RoleAssistant
		if t.IsUser {
			role = models.RoleUser
		}
		out = append(out, models.ChatTurn{Role: role, Content: t.Content})
	}
	return out
}

// Window returns the last limit turns of transcript projected to chat turns.
// The transcript must not yet contain the message being sent. A non-positive
// limit disables truncation.
func Window(transcript []Turn, limit int) []models.ChatTurn {
	if limit > 0 && len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}
	return Project(transcript)
}

// Truncate keeps the last limit chat turns. A non-positive limit disables
// truncation.
func Truncate(turns []models.ChatTurn, limit int) []models.ChatTurn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// RegenerationContext prepares a re-run of the assistant turn at position. It
// returns the paired user message (the nearest user turn before position) and
// the window of turns strictly before that user turn. Neither the regenerated
// turn nor its user turn appear in the returned context.
func RegenerationContext(transcript []Turn, position, limit int) (string, []models.ChatTurn, error) {
	if position < 0 || position >= len(transcript) {
		return "", nil, ErrPositionOutOfRange
	}
	if transcript[position].IsUser {
		return "", nil, ErrNotAssistantTurn
	}

	userPos := -1
	for i := position - 1; i >= 0; i-- {
		if transcript[i].IsUser {
			userPos = i
			break
		}
	}
	if userPos < 0 {
		return "", nil, ErrNoPairedUserTurn
	}

	return transcript[userPos].Content, Window(transcript[:userPos], limit), nil
}

// Assemble builds the provider message list: system, then context in caller
// order, then the new user message.
func Assemble(system string, context []models.ChatTurn, message string) []models.ChatTurn {
	messages := make([]models.ChatTurn, 0, 1+len(context)+1)
	messages = append(messages, models.ChatTurn{Role: models.RoleSystem, Content: system})
	messages = append(messages, context...)
	messages = append(messages, models.ChatTurn{Role: models.RoleUser, Content: message})
	return messages
}
