package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agrichat/internal/rag/schema"
)

// OpenAI is a completion client for OpenAI-compatible chat endpoints.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
}

// Config configures the completion client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	// MaxRetries is the number of retry attempts after a failed call. The
	// default of 0 fails immediately and surfaces the error.
	MaxRetries int
}

// NewOpenAI creates a new completion client.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: completion API key is required", schema.ErrInvalidConfiguration)
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
	}, nil
}

// Complete generates a completion for the prompt. The system instruction is
// sent as a system message when non-empty.
func (o *OpenAI) Complete(ctx context.Context, prompt, system string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = o.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if attempt >= o.maxRetries {
			return "", fmt.Errorf("%w: failed to create chat completion: %v", schema.ErrUpstreamFailure, err)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", schema.ErrUpstreamFailure, ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", schema.ErrUpstreamFailure)
	}
	return resp.Choices[0].Message.Content, nil
}

// retryDelay returns the exponential backoff delay for an attempt, capped at
// five seconds.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ CompletionModel = (*OpenAI)(nil)
