package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"makab-backend/internal/conversation"
	"makab-backend/internal/models"
)

type capturedRequest struct {
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	Messages    []models.ChatTurn `json:"messages"`
	header      http.Header
}

func newTestOpenRouter(t *testing.T, handler func(w http.ResponseWriter, req *capturedRequest)) (*OpenRouterClient, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Errorf("failed to decode provider request: %v", err)
		}
		captured.header = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		handler(w, captured)
	}))
	t.Cleanup(server.Close)

	client := NewOpenRouterClient(OpenRouterConfig{
		APIKey:      "sk-test",
		BaseURL:     server.URL,
		Model:       "meta-llama/llama-3.3-8b-instruct:free",
		Referer:     "https://makab-chat.lovable.app",
		Title:       "Makab - AI Chat Assistant",
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     5 * time.Second,
	})
	return client, captured
}

func writeCompletion(w http.ResponseWriter, content string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "gen-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "meta-llama/llama-3.3-8b-instruct:free",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

func TestOpenRouterClient_Complete(t *testing.T) {
	client, captured := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
		writeCompletion(w, "Hi there! 👋")
	})

	prompt := conversation.Assemble(conversation.SystemPrompt(false), []models.ChatTurn{
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "reply"},
	}, "Hello")

	reply, err := client.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Hi there! 👋" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if captured.Model != "meta-llama/llama-3.3-8b-instruct:free" {
		t.Errorf("unexpected model %q", captured.Model)
	}
	if captured.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", captured.Temperature)
	}
	if captured.MaxTokens != 1000 {
		t.Errorf("expected max_tokens 1000, got %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != models.RoleSystem || captured.Messages[3].Content != "Hello" {
		t.Errorf("messages not forwarded in order: %+v", captured.Messages)
	}

	if got := captured.header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("unexpected Authorization header %q", got)
	}
	if got := captured.header.Get("HTTP-Referer"); got != "https://makab-chat.lovable.app" {
		t.Errorf("unexpected HTTP-Referer %q", got)
	}
	if got := captured.header.Get("X-Title"); got != "Makab - AI Chat Assistant" {
		t.Errorf("unexpected X-Title %q", got)
	}
}

func TestOpenRouterClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
	}{
		{"server error", http.StatusInternalServerError, ProviderStatus},
		{"rate limited", http.StatusTooManyRequests, ProviderStatus},
		{"bad key", http.StatusUnauthorized, ProviderAuth},
		{"bad request", http.StatusBadRequest, ProviderRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"upstream said no","type":"error"}}`))
			})

			_, err := client.Complete(context.Background(), testPrompt)

			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Kind != tc.kind || perr.StatusCode != tc.status {
				t.Fatalf("expected %s/%d, got %s/%d", tc.kind, tc.status, perr.Kind, perr.StatusCode)
			}
			if tc.status == http.StatusInternalServerError && !strings.Contains(perr.Error(), "500") {
				t.Fatalf("error should carry the status code: %q", perr.Error())
			}
		})
	}
}

func TestOpenRouterClient_NonJSONErrorBody(t *testing.T) {
	client, _ := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := client.Complete(context.Background(), testPrompt)

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 ProviderError, got %v", err)
	}
	if !perr.Retryable() {
		t.Fatalf("502 should be retryable")
	}
}

func TestOpenRouterClient_NoChoices(t *testing.T) {
	client, _ := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
		w.Write([]byte(`{"id":"gen-1","object":"chat.completion","choices":[]}`))
	})

	_, err := client.Complete(context.Background(), testPrompt)

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != ProviderMalformed {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestOpenRouterClient_EmptyMessage(t *testing.T) {
	bodies := map[string]string{
		"null message":    `{"id":"gen-1","object":"chat.completion","choices":[{"index":0,"message":null}]}`,
		"missing message": `{"id":"gen-1","object":"chat.completion","choices":[{"index":0}]}`,
		"empty content":   `{"id":"gen-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
				w.Write([]byte(body))
			})

			reply, err := client.Complete(context.Background(), testPrompt)

			var perr *ProviderError
			if !errors.As(err, &perr) || perr.Kind != ProviderMalformed {
				t.Fatalf("expected malformed error, got reply %q err %v", reply, err)
			}
		})
	}
}

func TestOpenRouterClient_KeyNotInErrors(t *testing.T) {
	client, _ := newTestOpenRouter(t, func(w http.ResponseWriter, req *capturedRequest) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
	})

	_, err := client.Complete(context.Background(), testPrompt)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "sk-test") {
		t.Fatalf("error leaks the API key: %q", err.Error())
	}
}
