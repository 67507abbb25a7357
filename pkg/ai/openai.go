package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.openai.com/v1"

var ErrEmptyCompletion = errors.New("completion returned no choices")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input of one chat completion.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  float64
}

// Completer is the AI completion capability.
type Completer interface {
	Complete(ctx context.Context, request CompletionRequest) (string, error)
}

// OpenAIConfig configures the chat completions client. RequestsPerSecond of zero disables limiting.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// OpenAIClient calls the chat completions endpoint.
type OpenAIClient struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai api key not set")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(1, int(config.RequestsPerSecond)))
	}

	return &OpenAIClient{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetAuthToken(config.APIKey).
			SetHeader("Content-Type", "application/json"),
		limiter: limiter,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, request CompletionRequest) (string, error) {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]ChatMessage, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: request.SystemPrompt})
	}

	messages = append(messages, request.Messages...)

	var (
		result  chatResponse
		failure apiError
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       request.Model,
			Messages:    messages,
			MaxTokens:   request.MaxTokens,
			Temperature: request.Temperature,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("completion API error (status %d): %s", resp.StatusCode(), failure.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
