// Package llm contains language-model provider implementations.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-gateway/providers"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

// systemInstructions is prepended when a conversation carries no system
// message of its own.
const systemInstructions = "You are a helpful AI assistant. You answer questions concisely."

// OpenAI generates chat completions with the OpenAI API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI validates configuration and returns the provider.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, &providers.ConfigError{Provider: "openai", Missing: "OPENAI_API_KEY"}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model}, nil
}

// Generate produces a completion for the full conversation history. The
// last history element is the current user turn.
func (o *OpenAI) Generate(ctx context.Context, history []types.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if len(history) == 0 || history[0].Role != types.RoleSystem {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstructions,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", &providers.ProviderError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &providers.ProviderError{Provider: "openai", Err: fmt.Errorf("completion returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
