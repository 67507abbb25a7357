// Package cmd wires the shared runtime of the pagebot binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/catalog"
	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const DefaultAIModel = "gpt-4o-mini"

// ErrRedisRequired is returned when the event bus spans processes but conversation locks would not.
var ErrRedisRequired = errors.New("redis url is required with the kafka event bus")

// Config collects the flags shared by every binary.
type Config struct {
	ServiceName string
	DatabaseURL string
	EventBus    string
	RedisURL    string
	OTelEnabled bool

	OpenAIAPIKey            string
	OpenAIBaseURL           string
	OpenAIModel             string
	OpenAIRequestsPerSecond float64
	SystemPrompt            string

	CatalogURL  string
	GraphAPIURL string

	Engine engine.Config
}

// Runtime holds the collaborators built from a Config. Close releases them in reverse order.
type Runtime struct {
	Logger     *slog.Logger
	Store      persistence.Persistence
	Bus        *eventbus.WatermillEventBus
	Serializer *conversation.Serializer
	Redis      redis.UniversalClient
	Locker     conversation.Locker
	Dedup      conversation.Deduplicator
	Metrics    *metrics.Collector
	Tracer     trace.Tracer
	Actions    *actions.Executor
	Engine     *engine.Engine
	Ingestor   *engine.Ingestor

	closers []func(context.Context) error
}

func Build(ctx context.Context, logger *slog.Logger, config Config) (*Runtime, error) {
	r := &Runtime{
		Logger:     logger,
		Metrics:    metrics.New(),
		Serializer: conversation.NewSerializer(logger),
	}

	err := r.build(ctx, config)
	if err != nil {
		closeErr := r.Close(ctx)
		if closeErr != nil {
			logger.ErrorContext(ctx, "failed to release partial runtime", "error", closeErr)
		}

		return nil, err
	}

	return r, nil
}

func (r *Runtime) build(ctx context.Context, config Config) error {
	tracer, shutdown, err := otelhelper.NewTracer(ctx, config.ServiceName, config.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}

	r.Tracer = tracer
	r.closers = append(r.closers, shutdown)

	r.Store, err = NewPersistence(ctx, r.Logger, config.DatabaseURL)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, r.Store.Close)

	err = r.coordination(ctx, config)
	if err != nil {
		return err
	}

	r.Bus, err = NewEventBus(config.EventBus, config.ServiceName, r.Logger,
		eventbus.WithDispatcher(r.Serializer.Go),
		eventbus.WithTracer(tracer))
	if err != nil {
		return err
	}

	r.closers = append(r.closers, r.drain)

	engineConfig := config.Engine

	var eng *engine.Engine

	r.Actions = actions.New(r.Logger, r.Store.Customers(),
		actions.WithWebhookTimeout(engineConfig.WebhookTimeout),
		actions.WithMetrics(r.Metrics),
		actions.WithTracer(tracer),
		actions.WithFailureHandler(func(ctx context.Context, failure actions.Failure) {
			eng.ReportActionFailure(ctx, failure)
		}))

	collaborators := engine.Collaborators{
		Actions: r.Actions,
		Catalog: catalog.NewClient(r.Logger, config.CatalogURL, catalog.WithTracer(tracer)),
		Sender:  messenger.NewClient(r.Logger, config.GraphAPIURL, r.Store.Pages(), messenger.WithTracer(tracer)),
	}

	responder, err := r.responder(config, tracer)
	if err != nil {
		return err
	}

	if responder != nil {
		collaborators.AI = responder
	}

	eng = engine.New(r.Logger, r.Store, collaborators,
		engine.WithConfig(engineConfig),
		engine.WithLocker(r.Locker),
		engine.WithPublisher(r.Bus),
		engine.WithMetrics(r.Metrics),
		engine.WithTracer(tracer))
	r.Engine = eng
	r.Ingestor = engine.NewIngestor(r.Logger, r.Dedup, r.Bus, engine.WithIngestMetrics(r.Metrics))

	return nil
}

// coordination picks the conversation locker and dedup store: redis when configured, in-memory otherwise.
func (r *Runtime) coordination(ctx context.Context, config Config) error {
	dedupTTL := config.Engine.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = conversation.DefaultDedupTTL
	}

	if config.RedisURL == "" {
		if config.EventBus == EventBusKafka {
			return ErrRedisRequired
		}

		r.Logger.WarnContext(ctx, "redis not configured, conversation locks are process local")
		r.Locker = conversation.NewInMemoryLocker()
		r.Dedup = conversation.NewInMemoryDeduplicator(dedupTTL, nil)

		return nil
	}

	options, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)
	r.Redis = client
	r.closers = append(r.closers, func(context.Context) error {
		return client.Close()
	})

	err = client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	r.Locker = conversation.NewRedisLocker(r.Logger, client)
	r.Dedup = conversation.NewRedisDeduplicator(client, dedupTTL)

	return nil
}

// responder returns nil when no OpenAI key is configured; the engine then skips the AI fallback.
func (r *Runtime) responder(config Config, tracer trace.Tracer) (*ai.Adapter, error) {
	if config.OpenAIAPIKey == "" {
		r.Logger.Warn("openai api key not set, ai fallback disabled")

		return nil, nil //nolint:nilnil // no responder is a valid configuration
	}

	client, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:            config.OpenAIAPIKey,
		BaseURL:           config.OpenAIBaseURL,
		RequestsPerSecond: config.OpenAIRequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	model := config.OpenAIModel
	if model == "" {
		model = DefaultAIModel
	}

	defaults := models.AIConfig{
		Model:              model,
		SystemPrompt:       config.SystemPrompt,
		Temperature:        0.7,
		MaxHistoryMessages: config.Engine.DefaultHistory,
	}

	return ai.NewAdapter(r.Logger, client, r.Store.Messages(), r.Store.AIConfigs(), defaults,
		ai.WithTimeout(config.Engine.AITimeout),
		ai.WithMetrics(r.Metrics),
		ai.WithTracer(tracer)), nil
}

// drain stops the bus, then waits for queued event handlers and in-flight webhooks.
func (r *Runtime) drain(context.Context) error {
	err := r.Bus.Close()

	r.Serializer.Wait()

	if r.Actions != nil {
		r.Actions.Wait()
	}

	return err
}

// Close releases every resource in reverse order of creation.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		err := r.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	r.closers = nil

	return errors.Join(errs...)
}
