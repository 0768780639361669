package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mrsingh-rishi/voice-gateway/providers"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

// Google generates responses with the Gemini API.
type Google struct {
	client *genai.Client
	model  string
}

// NewGoogle validates configuration and returns the provider.
func NewGoogle(ctx context.Context, apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, &providers.ConfigError{Provider: "google", Missing: "GOOGLE_API_KEY"}
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &providers.ProviderError{Provider: "google", Err: fmt.Errorf("create client: %w", err)}
	}
	return &Google{client: client, model: model}, nil
}

// Generate produces a completion for the full conversation history. Gemini
// has no assistant role; assistant messages map to its "model" role and a
// leading system message becomes the system instruction.
func (g *Google) Generate(ctx context.Context, history []types.Message) (string, error) {
	system := systemInstructions
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			system = m.Content
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", &providers.ProviderError{Provider: "google", Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", &providers.ProviderError{Provider: "google", Err: fmt.Errorf("completion returned no text")}
	}
	return text, nil
}
