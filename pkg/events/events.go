// Package events defines the events exchanged between the ingestion API, workers and downstream consumers.
package events

import (
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every pagebot event. Messages are keyed by conversation key so a partitioned
// transport delivers one conversation's events in order.
const Topic = "pagebot.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InboundMessageReceivedEvent EventType = "inbound.message.received"

	// Engine outcome events.
	MessageProcessedEvent       EventType = "message.processed"
	ActionFailedEvent           EventType = "action.failed"
	AgentTransferRequestedEvent EventType = "agent.transfer.requested"

	// Editor events.
	ScenarioPublishedEvent EventType = "scenario.published"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PageID    string         `json:"page_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, pageID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PageID:    pageID,
		Metadata:  make(map[string]any),
	}
}

// InboundMessageReceived carries a normalized customer message from ingestion to the workers.
type InboundMessageReceived struct {
	BaseEvent

	Message models.InboundMessage `json:"message"`
}

func (e InboundMessageReceived) GetType() EventType {
	return InboundMessageReceivedEvent
}

func NewInboundMessageReceived(message models.InboundMessage) InboundMessageReceived {
	return InboundMessageReceived{
		BaseEvent: NewBaseEvent(InboundMessageReceivedEvent, message.PageID),
		Message:   message,
	}
}

type MessageProcessed struct {
	BaseEvent

	ConversationID string             `json:"conversation_id"`
	InboundID      string             `json:"inbound_id"`
	MID            string             `json:"mid"`
	OutboundID     string             `json:"outbound_id,omitempty"`
	ProcessedBy    models.ProcessedBy `json:"processed_by"`
	ScenarioID     string             `json:"scenario_id,omitempty"`
	Status         string             `json:"status"`
}

func (e MessageProcessed) GetType() EventType {
	return MessageProcessedEvent
}

type ActionFailed struct {
	BaseEvent

	ConversationID string            `json:"conversation_id"`
	ScenarioID     string            `json:"scenario_id,omitempty"`
	NodeID         string            `json:"node_id,omitempty"`
	ActionType     models.ActionType `json:"action_type"`
	Error          string            `json:"error"`
}

func (e ActionFailed) GetType() EventType {
	return ActionFailedEvent
}

// AgentTransferRequested tells human-agent tooling that a conversation is waiting in the queue.
type AgentTransferRequested struct {
	BaseEvent

	ConversationID string `json:"conversation_id"`
	PSID           string `json:"psid"`
	ScenarioID     string `json:"scenario_id,omitempty"`
	LastMessage    string `json:"last_message"`
}

func (e AgentTransferRequested) GetType() EventType {
	return AgentTransferRequestedEvent
}

type ScenarioPublished struct {
	BaseEvent

	ScenarioID string `json:"scenario_id"`
	Version    int    `json:"version"`
	CreatedBy  string `json:"created_by,omitempty"`
}

func (e ScenarioPublished) GetType() EventType {
	return ScenarioPublishedEvent
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case InboundMessageReceivedEvent:
		return &InboundMessageReceived{}, true
	case MessageProcessedEvent:
		return &MessageProcessed{}, true
	case ActionFailedEvent:
		return &ActionFailed{}, true
	case AgentTransferRequestedEvent:
		return &AgentTransferRequested{}, true
	case ScenarioPublishedEvent:
		return &ScenarioPublished{}, true
	default:
		return nil, false
	}
}
