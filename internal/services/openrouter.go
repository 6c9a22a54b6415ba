package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"makab-backend/internal/models"
)

// OpenRouterConfig holds everything needed to reach an OpenAI-compatible
// chat-completions endpoint.
type OpenRouterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Referer     string
	Title       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenRouterClient calls OpenRouter through the OpenAI wire format.
type OpenRouterClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	headers := map[string]string{}
	if cfg.Referer != "" {
		headers["HTTP-Referer"] = cfg.Referer
	}
	if cfg.Title != "" {
		headers["X-Title"] = cfg.Title
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &headerTransport{base: http.DefaultTransport, headers: headers},
	}

	return &OpenRouterClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenRouterClient) Complete(ctx context.Context, messages []models.ChatTurn) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: ProviderMalformed, Err: errors.New("response has no choices")}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", &ProviderError{Kind: ProviderMalformed, Err: errors.New("response has no message content")}
	}
	return content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return providerStatusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return providerStatusError(reqErr.HTTPStatusCode, err)
	}

	if ctxErr := contextError(err); ctxErr != err {
		return ctxErr
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ProviderError{Kind: ProviderMalformed, Err: err}
	}

	return &ProviderError{Kind: ProviderTransport, Err: fmt.Errorf("chat completion: %w", err)}
}

// headerTransport adds fixed attribution headers to every provider request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
