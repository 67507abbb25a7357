// Package eventbus carries pagebot events between the ingestion API, the workers and downstream consumers.
package eventbus

import (
	"context"

	"github.com/dukex/pagebot/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event under key. Events sharing a key are delivered in publish order.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. A returned error nacks the message for redelivery, or
// retries the handler in place when the bus acks on dispatch.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// Dispatcher runs job for the message keyed by key. Implementations must run the jobs of one key in
// submission order.
type Dispatcher func(key string, job func())

func inline(_ string, job func()) {
	job()
}
