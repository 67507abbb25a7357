package models

import "time"

type ConversationStatus string

const (
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusPending ConversationStatus = "pending"
	ConversationStatusClosed  ConversationStatus = "closed"
)

// Conversation is the aggregate the engine mutates under the per-conversation lock.
// Context holds the runtime variable bindings and FlowState the in-progress flow position.
type Conversation struct {
	ID          string             `json:"id"`
	PageID      string             `json:"page_id"`
	PSID        string             `json:"psid"`
	CustomerID  string             `json:"customer_id,omitempty"`
	Status      ConversationStatus `json:"status"`
	LastMessage string             `json:"last_message"`
	LastUpdated time.Time          `json:"last_updated"`
	FlowState   *FlowState         `json:"flow_state,omitempty"`
	Context     map[string]any     `json:"context"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Key identifies a conversation for locking and event partitioning.
func (c *Conversation) Key() string {
	return ConversationKey(c.PageID, c.PSID)
}

func ConversationKey(pageID, psid string) string {
	return pageID + ":" + psid
}

func (c *Conversation) IsPending() bool {
	return c.Status == ConversationStatusPending
}

type AwaitKind string

const (
	AwaitQuickReply AwaitKind = "quick_reply"
	AwaitForm       AwaitKind = "form"
	AwaitWait       AwaitKind = "wait"
)

// FlowState records where a conversation sits inside a scenario graph.
type FlowState struct {
	ScenarioID       string     `json:"scenario_id"`
	Version          int        `json:"version"`
	CurrentNodeID    string     `json:"current_node_id"`
	AwaitingInputFor AwaitKind  `json:"awaiting_input_for,omitempty"`
	FieldIndex       int        `json:"field_index,omitempty"`
	Retries          int        `json:"retries,omitempty"`
	ResumeAt         *time.Time `json:"resume_at,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
}

// Resolve returns the runtime value for key, falling back to the declared default.
func Resolve(context map[string]any, variables []*Variable, key string) (any, bool) {
	if value, ok := context[key]; ok {
		return value, true
	}

	for _, variable := range variables {
		if variable.Key == key && variable.DefaultValue != nil {
			return variable.DefaultValue, true
		}
	}

	return nil, false
}

// Bindings merges declared defaults with the runtime context. Context wins.
func Bindings(context map[string]any, variables []*Variable) map[string]any {
	bindings := make(map[string]any, len(context)+len(variables))

	for _, variable := range variables {
		if variable.DefaultValue != nil {
			bindings[variable.Key] = variable.DefaultValue
		}
	}

	for key, value := range context {
		bindings[key] = value
	}

	return bindings
}
