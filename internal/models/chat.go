package models

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one message of a conversation as the completion provider sees it.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant" ("system" only in assembled prompts)
	Content string `json:"content"`
}

// ChatRequest is the payload accepted by the completion relay.
type ChatRequest struct {
	Message    string     `json:"message"`
	WithSearch bool       `json:"withSearch"`
	Context    []ChatTurn `json:"context"`
}

// ChatResponse is the relay's success payload.
type ChatResponse struct {
	Response string `json:"response"`
}

// RelayErrorResponse is the relay's failure payload.
type RelayErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// SendMessageRequest is the payload of the authenticated send endpoint. The
// context window is built server-side from stored history.
type SendMessageRequest struct {
	Message    string `json:"message"`
	WithSearch bool   `json:"with_search"`
}

// SendMessageResponse carries both persisted turns of one exchange.
type SendMessageResponse struct {
	UserMessage      *Message `json:"user_message"`
	AssistantMessage *Message `json:"assistant_message"`
}
