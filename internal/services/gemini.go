package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"makab-backend/internal/models"
)

// GeminiClient serves completions from Google Gemini when PROVIDER=gemini.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string, temperature float64, maxTokens int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(temperature))
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Close() {
	c.client.Close()
}

// Complete maps the assembled prompt onto a Gemini chat session: the system
// turn becomes the system instruction, the middle turns the session history
// and the final user turn the message sent.
func (c *GeminiClient) Complete(ctx context.Context, messages []models.ChatTurn) (string, error) {
	system, history, last, err := splitPrompt(messages)
	if err != nil {
		return "", err
	}

	// Copy so concurrent requests do not share a system instruction.
	model := *c.model
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	for _, turn := range history {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(turn.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := extractText(resp)
	if text == "" {
		return "", &ProviderError{Kind: ProviderMalformed, Err: errors.New("Gemini returned no text")}
	}
	return text, nil
}

func splitPrompt(messages []models.ChatTurn) (system string, history []models.ChatTurn, last string, err error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != models.RoleUser {
		return "", nil, "", fmt.Errorf("prompt must end with a user message")
	}
	body := messages[:len(messages)-1]
	if len(body) > 0 && body[0].Role == models.RoleSystem {
		system = body[0].Content
		body = body[1:]
	}
	return system, body, messages[len(messages)-1].Content, nil
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code > 0 {
		return providerStatusError(gerr.Code, err)
	}
	if ctxErr := contextError(err); ctxErr != err {
		return ctxErr
	}
	return &ProviderError{Kind: ProviderTransport, Err: fmt.Errorf("Gemini API error: %w", err)}
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
