package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loveucifer/visceral/internal/domain"
)

// OpenAIClient implements the LanguageModel interface against the OpenAI
// chat completion API
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-backed language model client
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Generate sends a prompt as a single-turn chat completion
func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.NewAppErrorWithCause(
				domain.ErrModelTimeout,
				"Model call exceeded its deadline",
				504,
				err,
				map[string]any{"model": o.model},
			)
		}
		return "", domain.NewAppErrorWithCause(
			domain.ErrModelUnavailable,
			"Model endpoint unreachable",
			503,
			err,
			map[string]any{"model": o.model},
		)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewAppError(
			domain.ErrModelUnavailable,
			"Model returned no choices",
			503,
			map[string]any{"model": o.model},
		)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
