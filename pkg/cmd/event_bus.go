package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/pagebot/pkg/channels/gochannel"
	"github.com/dukex/pagebot/pkg/channels/kafka"
	"github.com/dukex/pagebot/pkg/eventbus"
)

const (
	EventBusMemory    = "memory"
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"

	// InProcessRetries bounds in-place handler retries on the in-process bus, which cannot redeliver.
	InProcessRetries = 3
)

// NewEventBus creates the event bus for provider. The kafka consumer group is derived from serviceName.
func NewEventBus(provider, serviceName string, logger *slog.Logger, opts ...eventbus.Option) (*eventbus.WatermillEventBus, error) {
	switch provider {
	case EventBusKafka:
		pub, sub, err := kafka.CreateChannel(logger, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub, opts...), nil
	case EventBusMemory, EventBusGoChannel, "":
		channel := gochannel.CreateChannel(logger)
		opts = append(opts, eventbus.WithAckOnDispatch(InProcessRetries))

		return eventbus.NewWatermillEventBus(logger, channel, channel, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
