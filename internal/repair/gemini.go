package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiCompleter implements Completer using Google's Gemini API.
type GeminiCompleter struct {
	client  *genai.Client
	modelID string
}

// NewGeminiCompleter creates a Gemini-backed completer.
func NewGeminiCompleter(ctx context.Context, apiKey, modelID string) (*GeminiCompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("repair: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("repair: failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, modelID: modelID}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(1024)
	model.ResponseMIMEType = "application/json"
	if strings.TrimSpace(system) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("repair: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("repair: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("repair: gemini returned empty content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiCompleter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
