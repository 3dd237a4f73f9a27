package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-dating-realtime/internal/domain"
)

// Generator produces insights from a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*domain.Insights, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint in
// JSON mode.
type OpenAIGenerator struct {
	Client  *openai.Client
	Model   string
	Timeout time.Duration
}

// NewOpenAIGenerator returns a generator for apiKey. baseURL may point at
// any OpenAI-compatible server.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIGenerator{Client: openai.NewClientWithConfig(cfg), Model: model, Timeout: timeout}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (*domain.Insights, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.7,
		MaxTokens:      500,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices")
	}
	var out domain.Insights
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return &out, nil
}
