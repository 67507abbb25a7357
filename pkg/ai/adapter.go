// Package ai produces fallback and ai_reply responses from a chat completion provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHistory = 5
	DefaultTimeout = 30 * time.Second
)

var ErrNoModel = errors.New("no ai model configured")

// Request describes one completion on behalf of a conversation. Override is the ai_reply node
// content, nil for the fallback path. Unsaved marks an inbound message that is not in storage,
// as in simulated test runs, so it is appended to the history.
type Request struct {
	Conversation *models.Conversation
	Scenario     *models.Scenario
	Page         *models.Page
	Message      *models.InboundMessage
	Override     *models.AIReplyContent
	Unsaved      bool
}

type Option func(*Adapter)

func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Adapter) {
		a.metrics = collector
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *Adapter) {
		a.tracer = tracer
	}
}

// Adapter resolves the effective AI config, bounds the history and calls the completer.
// It never retries.
type Adapter struct {
	logger    *slog.Logger
	completer Completer
	messages  persistence.MessageRepository
	configs   persistence.AIConfigRepository
	defaults  models.AIConfig
	timeout   time.Duration
	metrics   *metrics.Collector
	tracer    trace.Tracer
}

func NewAdapter(
	logger *slog.Logger,
	completer Completer,
	messages persistence.MessageRepository,
	configs persistence.AIConfigRepository,
	defaults models.AIConfig,
	opts ...Option,
) *Adapter {
	if defaults.MaxHistoryMessages <= 0 {
		defaults.MaxHistoryMessages = DefaultHistory
	}

	a := &Adapter{
		logger:    logger.With("module", "ai"),
		completer: completer,
		messages:  messages,
		configs:   configs,
		defaults:  defaults,
		timeout:   DefaultTimeout,
		tracer:    otel.Tracer("pagebot-ai"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Resolve layers the system default, the page default config, the scenario config and the node
// override. The most specific populated value wins for every field.
func (a *Adapter) Resolve(ctx context.Context, request Request) (*models.AIConfig, error) {
	config := a.defaults

	if request.Page != nil && request.Page.DefaultAIConfigID != "" {
		err := a.layer(ctx, &config, request.Page.DefaultAIConfigID)
		if err != nil {
			return nil, err
		}
	}

	if request.Scenario != nil && request.Scenario.OpenAIConfigID != "" {
		err := a.layer(ctx, &config, request.Scenario.OpenAIConfigID)
		if err != nil {
			return nil, err
		}
	}

	if override := request.Override; override != nil && !override.UseDefault {
		merge(&config, &models.AIConfig{
			Model:              override.Model,
			SystemPrompt:       override.SystemPrompt,
			MaxTokens:          override.MaxTokens,
			MaxHistoryMessages: override.MaxHistoryMessages,
		})

		if override.Temperature != nil {
			config.Temperature = *override.Temperature
		}
	} else if override != nil && override.MaxHistoryMessages > 0 {
		config.MaxHistoryMessages = override.MaxHistoryMessages
	}

	if config.Model == "" {
		return nil, ErrNoModel
	}

	return &config, nil
}

// Respond returns the completion text for the request.
func (a *Adapter) Respond(ctx context.Context, request Request) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "ai.respond",
		attribute.String(otelhelper.ConversationIDKey, conversationID(request)),
		attribute.Bool("pagebot.ai.node", request.Override != nil),
	)
	defer span.End()

	if request.Scenario != nil {
		span.SetAttributes(attribute.String(otelhelper.ScenarioIDKey, request.Scenario.ID))
	}

	config, err := a.Resolve(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	span.SetAttributes(attribute.String(otelhelper.ModelKey, config.Model))

	history, err := a.History(ctx, request, config.MaxHistoryMessages)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()

	text, err := a.completer.Complete(ctx, CompletionRequest{
		Model:        config.Model,
		SystemPrompt: config.SystemPrompt,
		Messages:     history,
		MaxTokens:    config.MaxTokens,
		Temperature:  config.Temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyCompletion
	}

	if err != nil {
		a.metrics.AICompletion(config.Model, "error", time.Since(started))
		otelhelper.SetError(span, err)
		a.logger.ErrorContext(ctx, "ai completion failed",
			"conversation_id", conversationID(request),
			"model", config.Model,
			"error", err)

		return "", fmt.Errorf("ai completion: %w", err)
	}

	a.metrics.AICompletion(config.Model, "success", time.Since(started))
	a.logger.InfoContext(ctx, "ai completion",
		"conversation_id", conversationID(request),
		"model", config.Model,
		"history", len(history))

	return text, nil
}

// History returns at most limit messages of the conversation, oldest first, as chat turns.
func (a *Adapter) History(ctx context.Context, request Request, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}

	history := make([]ChatMessage, 0, limit)

	if request.Conversation != nil && request.Conversation.ID != "" {
		recent, err := a.messages.Recent(ctx, request.Conversation.ID, limit)
		if err != nil && !persistence.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}

		for _, message := range recent {
			if strings.TrimSpace(message.Text) == "" {
				continue
			}

			role := RoleUser
			if message.Direction == models.DirectionOut {
				role = RoleAssistant
			}

			history = append(history, ChatMessage{Role: role, Content: message.Text})
		}
	}

	if request.Unsaved && request.Message != nil && request.Message.Text != "" {
		history = append(history, ChatMessage{Role: RoleUser, Content: request.Message.Text})
	}

	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	return history, nil
}

func (a *Adapter) layer(ctx context.Context, config *models.AIConfig, id string) error {
	stored, err := a.configs.GetByID(ctx, id)
	if persistence.IsAIConfigNotFound(err) {
		a.logger.WarnContext(ctx, "ai config not found, skipping", "ai_config_id", id)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load ai config %s: %w", id, err)
	}

	merge(config, stored)

	return nil
}

func merge(config, layer *models.AIConfig) {
	if layer.Model != "" {
		config.Model = layer.Model
	}

	if layer.SystemPrompt != "" {
		config.SystemPrompt = layer.SystemPrompt
	}

	if layer.Temperature != 0 {
		config.Temperature = layer.Temperature
	}

	if layer.MaxTokens > 0 {
		config.MaxTokens = layer.MaxTokens
	}

	if layer.MaxHistoryMessages > 0 {
		config.MaxHistoryMessages = layer.MaxHistoryMessages
	}
}

func conversationID(request Request) string {
	if request.Conversation == nil {
		return ""
	}

	return request.Conversation.ID
}
