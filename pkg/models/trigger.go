package models

import "time"

type TriggerType string

const (
	TriggerTypeKeyword TriggerType = "keyword"
	TriggerTypeEvent   TriggerType = "event"
	TriggerTypeTime    TriggerType = "time"
)

type MatchMode string

const (
	MatchModeContains   MatchMode = "contains"
	MatchModeExact      MatchMode = "exact"
	MatchModeRegex      MatchMode = "regex"
	MatchModeStartsWith MatchMode = "startswith"
)

// Event trigger values that are not postback payloads.
const (
	EventConversationStarted = "conversation_started"
)

// Trigger selects a scenario's entry node. Keyword triggers hold the keyword or pattern in Value,
// event triggers the event name or postback payload, time triggers a cron expression.
type Trigger struct {
	ID          string      `json:"id"`
	Type        TriggerType `json:"type"                    validate:"required,oneof=keyword event time"`
	MatchMode   MatchMode   `json:"match_mode,omitempty"    validate:"omitempty,oneof=contains exact regex"`
	Value       string      `json:"value"                   validate:"required"`
	IsActive    bool        `json:"is_active"`
	Priority    int         `json:"priority"                validate:"min=0"`
	EntryNodeID string      `json:"entry_node_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type SubScriptStatus string

const (
	SubScriptStatusActive   SubScriptStatus = "active"
	SubScriptStatusInactive SubScriptStatus = "inactive"
)

// SubScript is a flat keyword to response rule with an optional side-effect action.
type SubScript struct {
	ID                  string          `json:"id"`
	ScenarioID          string          `json:"scenario_id"`
	Name                string          `json:"name"                           validate:"required"`
	TriggerKeywords     []string        `json:"trigger_keywords"               validate:"required,min=1,dive,required"`
	ResponseTemplate    string          `json:"response_template"`
	ProductID           string          `json:"product_id,omitempty"`
	ProductGroupID      string          `json:"product_group_id,omitempty"`
	Priority            int             `json:"priority"                       validate:"min=0"`
	Status              SubScriptStatus `json:"status"                         validate:"required,oneof=active inactive"`
	Action              *Action         `json:"action,omitempty"`
	ContextRequired     string          `json:"context_required,omitempty"`
	MatchMode           MatchMode       `json:"match_mode"                     validate:"required,oneof=contains exact regex startswith"`
	ConfidenceThreshold float64         `json:"confidence_threshold"           validate:"min=0,max=1"`
	CreatedAt           time.Time       `json:"created_at"`
}

func (s *SubScript) IsActive() bool {
	return s.Status == SubScriptStatusActive
}
