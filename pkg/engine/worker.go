package engine

import (
	"context"
	"log/slog"

	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
)

// Worker consumes inbound message events and runs them through the engine.
type Worker struct {
	logger *slog.Logger
	engine *Engine
	bus    eventbus.EventSubscriber
}

func NewWorker(logger *slog.Logger, engine *Engine, bus eventbus.EventSubscriber) *Worker {
	return &Worker{
		logger: logger.With("module", "pagebot-worker"),
		engine: engine,
		bus:    bus,
	}
}

// Start registers the handlers and subscribes. It returns once the subscription is running.
func (w *Worker) Start(ctx context.Context) error {
	err := w.bus.Handle(events.InboundMessageReceivedEvent, w.handleInboundMessage)
	if err != nil {
		return err
	}

	err = w.bus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	return nil
}

// handleInboundMessage only asks for redelivery when storage failed. Every other failure was
// already recorded on the conversation.
func (w *Worker) handleInboundMessage(ctx context.Context, event any) error {
	received, ok := event.(*events.InboundMessageReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for InboundMessageReceived")

		return nil
	}

	message := received.Message

	logger := w.logger.With("page_id", message.PageID, "psid", message.SenderID, "mid", message.MID, "event_id", received.ID)

	outcome, err := w.engine.Process(ctx, &message)
	if err != nil {
		if IsStorageUnavailable(err) {
			logger.ErrorContext(ctx, "Storage unavailable, message will be redelivered", "error", err)

			return err
		}

		logger.ErrorContext(ctx, "Failed to process message", "error", err)

		return nil
	}

	logger.InfoContext(ctx, "Message processed",
		"conversation_id", outcome.ConversationID,
		"processed_by", outcome.ProcessedBy,
		"status", outcome.Status,
		"duplicate", outcome.Duplicate)

	return nil
}
