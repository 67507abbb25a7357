package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type WatermillEventBus struct {
	logger        *slog.Logger
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	dispatch      Dispatcher
	tracer        trace.Tracer
	ackOnDispatch bool
	retry         middleware.Retry
}

type Option func(*WatermillEventBus)

// WithDispatcher hands every received message to dispatch instead of handling it on the
// subscription goroutine.
func WithDispatcher(dispatch Dispatcher) Option {
	return func(eb *WatermillEventBus) {
		eb.dispatch = dispatch
	}
}

// WithAckOnDispatch acks each message as soon as the dispatcher has queued it, leaving ordering and
// concurrency to the dispatcher. Redelivery is then impossible, so a failing handler is retried in
// place up to maxRetries times with exponential backoff.
func WithAckOnDispatch(maxRetries int) Option {
	return func(eb *WatermillEventBus) {
		eb.ackOnDispatch = true
		eb.retry.MaxRetries = maxRetries
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(eb *WatermillEventBus) {
		eb.tracer = tracer
	}
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, opts ...Option) *WatermillEventBus {
	eb := &WatermillEventBus{
		logger:        logger.With("module", "eventbus"),
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		dispatch:      inline,
		tracer:        otel.Tracer("pagebot-eventbus"),
		retry: middleware.Retry{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			Logger:          watermill.NewSlogLogger(logger),
		},
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	eb.logger.DebugContext(ctx, "Publishing event", "key", key, "event_type", event.GetType())

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.GetType(), err)
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			key := msg.Metadata.Get(events.EventMetadataKey)

			if !eb.ackOnDispatch {
				eb.dispatch(key, func() {
					eb.settle(msg, eb.handle(ctx, msg))
				})

				continue
			}

			eb.dispatch(key, func() {
				eb.handleWithRetry(ctx, msg)
			})
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) settle(msg *message.Message, err error) {
	if err != nil {
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) handleWithRetry(ctx context.Context, msg *message.Message) {
	msg.SetContext(ctx)

	handler := eb.retry.Middleware(func(msg *message.Message) ([]*message.Message, error) {
		return nil, eb.handle(ctx, msg)
	})

	_, err := handler(msg)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Dropping event after retries", "error", err,
			"key", msg.Metadata.Get(events.EventMetadataKey),
			"event_type", msg.Metadata.Get(events.EventTypeMetadataKey))
	}
}

// handle decodes msg and runs its handler. Only a handler error is returned; undecodable or
// unhandled messages are dropped.
func (eb *WatermillEventBus) handle(ctx context.Context, msg *message.Message) error {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	handler, exists := eb.subscriptions[eventType]
	if !exists {
		return nil
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))

	msgCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, "eventbus.handle",
		attribute.String("event.type", string(eventType)),
		attribute.String("event.key", msg.Metadata.Get(events.EventMetadataKey)),
	)
	defer span.End()

	event, known := events.New(eventType)
	if !known {
		eb.logger.ErrorContext(msgCtx, "Unknown event type", "event_type", eventType)

		return nil
	}

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.ErrorContext(msgCtx, "Failed to unmarshal event", "error", err, "event_type", eventType)
		otelhelper.SetError(span, err)

		return nil
	}

	err = handler(msgCtx, event)
	if err != nil {
		eb.logger.ErrorContext(msgCtx, "Failed to handle event", "error", err, "event_type", eventType)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
