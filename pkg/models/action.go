package models

import "time"

type ActionType string

const (
	ActionTypeAddTag          ActionType = "add_tag"
	ActionTypeSetVariable     ActionType = "set_variable"
	ActionTypeCallWebhook     ActionType = "call_webhook"
	ActionTypeTransferToAgent ActionType = "transfer_to_agent"
)

// Action is a side effect declared by a sub-script or an action node. Only the fields of its Type are read.
type Action struct {
	Type ActionType `json:"type" validate:"required,oneof=add_tag set_variable call_webhook transfer_to_agent"`

	// add_tag
	TagName string `json:"tag_name,omitempty" validate:"required_if=Type add_tag"`

	// set_variable
	Key   string `json:"key,omitempty"   validate:"required_if=Type set_variable"`
	Value any    `json:"value,omitempty"`

	// call_webhook
	URL            string            `json:"url,omitempty"             validate:"required_if=Type call_webhook"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"min=0,max=120"`
	Blocking       bool              `json:"blocking,omitempty"`
	ResponsePath   string            `json:"response_path,omitempty"`
	SaveTo         string            `json:"save_to,omitempty"`

	// transfer_to_agent
	Note string `json:"note,omitempty"`
}

type ActionStatus string

const (
	ActionStatusSuccess    ActionStatus = "success"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusDispatched ActionStatus = "dispatched"
	ActionStatusSkipped    ActionStatus = "skipped"
)

// ActionResult records one executed action.
type ActionResult struct {
	Type       ActionType     `json:"type"`
	Status     ActionStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMs int64          `json:"duration_ms"`
}

func (r *ActionResult) Failed() bool {
	return r.Status == ActionStatusFailed
}
