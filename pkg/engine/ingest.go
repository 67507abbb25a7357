package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/dukex/pagebot/pkg/metrics"
)

// IngestResult counts what happened to the events of one webhook delivery.
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
}

// Ingestor turns webhook deliveries into inbound message events. It acknowledges quickly and leaves
// processing to the workers.
type Ingestor struct {
	logger    *slog.Logger
	dedup     conversation.Deduplicator
	publisher eventbus.EventPublisher
	metrics   *metrics.Collector
	now       func() time.Time
}

type IngestorOption func(*Ingestor)

func WithIngestMetrics(m *metrics.Collector) IngestorOption {
	return func(i *Ingestor) {
		i.metrics = m
	}
}

func WithIngestClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		i.now = now
	}
}

func NewIngestor(
	logger *slog.Logger,
	dedup conversation.Deduplicator,
	publisher eventbus.EventPublisher,
	opts ...IngestorOption,
) *Ingestor {
	i := &Ingestor{
		logger:    logger.With("module", "ingestor"),
		dedup:     dedup,
		publisher: publisher,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// IngestWebhook parses a verified webhook body and enqueues every new customer event.
func (i *Ingestor) IngestWebhook(ctx context.Context, body []byte) (*IngestResult, error) {
	parsed, err := messenger.ParseWebhook(body)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{}

	for _, event := range parsed {
		err = i.ingest(ctx, event, result)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// Ingest enqueues a single already-parsed event.
func (i *Ingestor) Ingest(ctx context.Context, event messenger.Event) (*IngestResult, error) {
	result := &IngestResult{}

	return result, i.ingest(ctx, event, result)
}

func (i *Ingestor) ingest(ctx context.Context, event messenger.Event, result *IngestResult) error {
	message, err := Normalize(event, i.now())
	if err != nil {
		i.logger.WarnContext(ctx, "Ignoring webhook event", "page_id", event.PageID, "mid", event.MID, "error", err)
		result.Ignored++

		return nil
	}

	fresh, err := i.dedup.Claim(ctx, message.PageID, message.MID)
	if err != nil {
		return storageError("claim mid", err)
	}

	if !fresh {
		i.metrics.Duplicate()
		result.Duplicates++

		return nil
	}

	err = i.publisher.Publish(ctx, message.ConversationKey(), events.NewInboundMessageReceived(*message))
	if err != nil {
		forgetErr := i.dedup.Forget(ctx, message.PageID, message.MID)
		if forgetErr != nil {
			i.logger.ErrorContext(ctx, "Failed to release mid claim", "mid", message.MID, "error", forgetErr)
		}

		return err
	}

	i.metrics.MessageReceived()
	result.Accepted++

	return nil
}
