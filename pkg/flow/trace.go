package flow

import "github.com/dukex/pagebot/pkg/models"

type StepKind string

const (
	StepMatch       StepKind = "match"
	StepNode        StepKind = "node"
	StepCondition   StepKind = "condition"
	StepAction      StepKind = "action"
	StepAI          StepKind = "ai"
	StepInput       StepKind = "input"
	StepSuspend     StepKind = "suspend"
	StepTerminal    StepKind = "terminal"
	StepConfigError StepKind = "config_error"
	StepDispatch    StepKind = "dispatch"
)

// Step is one entry of an execution trace.
type Step struct {
	Kind       StepKind             `json:"kind"`
	ScenarioID string               `json:"scenario_id,omitempty"`
	NodeID     string               `json:"node_id,omitempty"`
	NodeType   models.NodeType      `json:"node_type,omitempty"`
	LinkID     string               `json:"link_id,omitempty"`
	Condition  string               `json:"condition,omitempty"`
	Passed     *bool                `json:"passed,omitempty"`
	Action     *models.ActionResult `json:"action,omitempty"`
	Detail     string               `json:"detail,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Trace collects steps of one inbound message. A nil *Trace discards everything.
type Trace struct {
	Steps []Step `json:"steps"`
}

func NewTrace() *Trace {
	return &Trace{Steps: make([]Step, 0)}
}

func (t *Trace) Add(step Step) {
	if t == nil {
		return
	}

	t.Steps = append(t.Steps, step)
}
