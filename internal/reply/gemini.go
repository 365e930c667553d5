package reply

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiModel is a Model backed by the Gemini API.
type GeminiModel struct {
	client  *genai.Client
	modelID string
}

var _ Model = (*GeminiModel)(nil)

// NewGeminiModel creates a client for modelID. It does not contact the API.
func NewGeminiModel(ctx context.Context, apiKey, modelID string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	return &GeminiModel{client: client, modelID: modelID}, nil
}

// Probe looks up the model's metadata.
func (g *GeminiModel) Probe(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.modelID, nil); err != nil {
		return fmt.Errorf("model %s unavailable: %w", g.modelID, err)
	}
	return nil
}

// Generate returns the text of the first candidate.
func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelID, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
