// Package flow walks a scenario's node graph for one conversation.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/template"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxHops = 25

type ActionRunner interface {
	Execute(ctx context.Context, action *models.Action, env actions.Env) *models.ActionResult
}

type Responder interface {
	Respond(ctx context.Context, request ai.Request) (string, error)
}

type Catalog interface {
	GetProducts(ctx context.Context, productGroupID string, limit int) ([]models.Product, error)
}

// SnapshotSource loads the latest published snapshot of a scenario for child_script nodes.
type SnapshotSource interface {
	Published(ctx context.Context, scenarioID string) (*models.Scenario, error)
}

// Run is the input of one traversal. Scenario is a published snapshot, or the draft in editor
// test runs. Conversation is mutated in place.
type Run struct {
	Scenario     *models.Scenario
	Conversation *models.Conversation
	Page         *models.Page
	Message      *models.InboundMessage
	Simulate     bool
	DisableAI    bool
	Trace        *Trace
}

// Result is what a traversal produced for the inbound message.
type Result struct {
	Parts       []models.OutboundPayload
	ProcessedBy models.ProcessedBy
	Actions     []*models.ActionResult
	Terminal    bool
	Suspended   bool
	// AIFailed is set when an ai_reply node could not get an answer.
	AIFailed bool
}

// Responded reports whether the traversal rendered anything to send.
func (r *Result) Responded() bool {
	for _, part := range r.Parts {
		if !part.Empty() {
			return true
		}
	}

	return false
}

// Payload merges the rendered parts into one outbound payload. Texts are joined by blank lines.
func (r *Result) Payload() models.OutboundPayload {
	texts := make([]string, 0, len(r.Parts))
	payload := models.OutboundPayload{}

	for _, part := range r.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}

		payload.Attachments = append(payload.Attachments, part.Attachments...)
	}

	payload.Text = strings.Join(texts, "\n\n")

	return payload
}

type Option func(*Executor)

func WithMaxHops(hops int) Option {
	return func(e *Executor) {
		if hops > 0 {
			e.maxHops = hops
		}
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Executor) {
		e.metrics = collector
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// Executor is the flow state machine. It holds no per-conversation state and is safe for
// concurrent use.
type Executor struct {
	logger     *slog.Logger
	actions    ActionRunner
	responder  Responder
	catalog    Catalog
	snapshots  SnapshotSource
	conditions *Conditions
	metrics    *metrics.Collector
	maxHops    int
	now        func() time.Time
	tracer     trace.Tracer
}

func NewExecutor(
	logger *slog.Logger,
	actionRunner ActionRunner,
	responder Responder,
	catalog Catalog,
	snapshots SnapshotSource,
	opts ...Option,
) *Executor {
	e := &Executor{
		logger:     logger.With("module", "flow"),
		actions:    actionRunner,
		responder:  responder,
		catalog:    catalog,
		snapshots:  snapshots,
		conditions: NewConditions(),
		maxHops:    DefaultMaxHops,
		now:        time.Now,
		tracer:     otel.Tracer("pagebot-flow"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start enters the scenario at entryNodeID, replacing any flow the conversation was in.
// It returns a *ConfigError without touching the conversation when the entry node does not exist.
func (e *Executor) Start(ctx context.Context, run *Run, entryNodeID string) (*Result, error) {
	entry := run.Scenario.Node(entryNodeID)
	if entry == nil {
		err := &ConfigError{
			Kind:       KindMissingEntry,
			ScenarioID: run.Scenario.ID,
			NodeID:     entryNodeID,
			Reason:     "entry node does not exist",
		}
		e.reportConfigError(ctx, run, err)

		return nil, err
	}

	x := e.newExecution(ctx, run)

	if previous := run.Conversation.FlowState; previous != nil {
		x.logger.InfoContext(ctx, "replacing active flow",
			"previous_scenario_id", previous.ScenarioID,
			"previous_node_id", previous.CurrentNodeID)
	}

	run.Conversation.FlowState = &models.FlowState{
		ScenarioID: run.Scenario.ID,
		Version:    run.Scenario.PublishedVersion,
		StartedAt:  e.now().UTC(),
	}

	x.hops = 1
	x.position(entry)
	x.proceed(entry, x.enter(entry))

	return x.result, nil
}

// Resume interprets the inbound message as the answer the conversation's flow is waiting for.
// It returns a *ConfigError, after clearing the flow, when the awaited node no longer exists.
func (e *Executor) Resume(ctx context.Context, run *Run) (*Result, error) {
	state := run.Conversation.FlowState

	node := run.Scenario.Node(state.CurrentNodeID)
	if node == nil {
		err := &ConfigError{
			Kind:       KindMissingNode,
			ScenarioID: run.Scenario.ID,
			NodeID:     state.CurrentNodeID,
			Reason:     "awaited node does not exist",
		}
		e.reportConfigError(ctx, run, err)
		run.Conversation.FlowState = nil

		return nil, err
	}

	x := e.newExecution(ctx, run)
	x.hops = 1

	var next transition

	switch state.AwaitingInputFor {
	case models.AwaitQuickReply:
		next = x.answerQuickReply(node)
	case models.AwaitForm:
		next = x.answerForm(node)
	default:
		state.AwaitingInputFor = ""
		state.ResumeAt = nil
		next = transition{kind: follow}
	}

	x.proceed(node, next)

	return x.result, nil
}

// Continue follows the links of a node the flow is parked on, used when a wait node expires.
func (e *Executor) Continue(ctx context.Context, run *Run) (*Result, error) {
	state := run.Conversation.FlowState
	state.AwaitingInputFor = ""
	state.ResumeAt = nil

	return e.Resume(ctx, run)
}

type transitionKind int

const (
	follow transitionKind = iota
	jump
	suspend
	terminate
)

type transition struct {
	kind   transitionKind
	target string
}

// execution is the state of one traversal.
type execution struct {
	*Executor

	ctx    context.Context
	run    *Run
	result *Result
	logger *slog.Logger
	hops   int
}

func (e *Executor) newExecution(ctx context.Context, run *Run) *execution {
	return &execution{
		Executor: e,
		ctx:      ctx,
		run:      run,
		result:   &Result{ProcessedBy: models.ProcessedByScript},
		logger: e.logger.With(
			"conversation_id", run.Conversation.ID,
			"scenario_id", run.Scenario.ID),
	}
}

func (x *execution) proceed(from *models.Node, next transition) {
	for {
		var nextID string

		switch next.kind {
		case suspend:
			x.result.Suspended = true
			x.trace(Step{Kind: StepSuspend, NodeID: from.ID, Detail: string(x.run.Conversation.FlowState.AwaitingInputFor)})

			return
		case terminate:
			x.terminate(from)

			return
		case jump:
			nextID = next.target
		case follow:
			nextID = x.follow(from)
			if nextID == "" {
				x.terminate(from)

				return
			}
		}

		x.hops++
		if x.hops > x.maxHops {
			x.configError(&ConfigError{
				Kind:       KindMaxHops,
				ScenarioID: x.run.Scenario.ID,
				NodeID:     nextID,
				Reason:     "hop limit reached, flow stopped",
			})
			x.terminate(from)

			return
		}

		node := x.run.Scenario.Node(nextID)
		if node == nil {
			x.configError(&ConfigError{
				Kind:       KindDanglingLink,
				ScenarioID: x.run.Scenario.ID,
				NodeID:     from.ID,
				Reason:     "link target " + nextID + " does not exist",
			})
			x.terminate(from)

			return
		}

		x.position(node)
		next = x.enter(node)
		from = node
	}
}

// follow returns the target of the first outgoing link whose condition holds.
func (x *execution) follow(node *models.Node) string {
	env := Env(x.bindings(), x.run.Message)

	for _, link := range x.run.Scenario.OutgoingLinks(node.ID) {
		passed, err := x.conditions.Evaluate(link.Condition, env)
		if err != nil {
			x.logger.WarnContext(x.ctx, "link condition failed, treated as false",
				"link_id", link.ID,
				"condition", link.Condition,
				"error", err)
			x.metrics.ConfigError(KindBadCondition)
		}

		if link.Condition != "" || err != nil {
			step := Step{
				Kind:      StepCondition,
				NodeID:    node.ID,
				LinkID:    link.ID,
				Condition: link.Condition,
				Passed:    &passed,
			}
			if err != nil {
				step.Error = err.Error()
			}

			x.trace(step)
		}

		if passed {
			return link.ToNodeID
		}
	}

	return ""
}

func (x *execution) enter(node *models.Node) transition {
	x.trace(Step{Kind: StepNode, ScenarioID: x.run.Scenario.ID, NodeID: node.ID, NodeType: node.Type})

	if err := node.Validate(); err != nil {
		x.configError(&ConfigError{
			Kind:       KindContentMismatch,
			ScenarioID: x.run.Scenario.ID,
			NodeID:     node.ID,
			Reason:     err.Error(),
		})

		return transition{kind: terminate}
	}

	parent := x.ctx

	ctx, span := otelhelper.StartSpan(parent, x.tracer, "flow.node",
		attribute.String(otelhelper.ScenarioIDKey, x.run.Scenario.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	x.ctx = ctx
	defer func() { x.ctx = parent }()

	v := &visitor{x: x, node: node}

	err := node.Content.Accept(v)
	if err != nil {
		otelhelper.SetError(span, err)
		x.logger.ErrorContext(x.ctx, "node failed", "node_id", node.ID, "error", err)
		x.trace(Step{Kind: StepNode, NodeID: node.ID, Error: err.Error()})

		return transition{kind: terminate}
	}

	return v.next
}

func (x *execution) position(node *models.Node) {
	state := x.run.Conversation.FlowState
	if state == nil {
		state = &models.FlowState{StartedAt: x.now().UTC()}
		x.run.Conversation.FlowState = state
	}

	state.ScenarioID = x.run.Scenario.ID
	state.Version = x.run.Scenario.PublishedVersion
	state.CurrentNodeID = node.ID
	state.AwaitingInputFor = ""
	state.FieldIndex = 0
	state.Retries = 0
	state.ResumeAt = nil
}

func (x *execution) await(kind models.AwaitKind) transition {
	x.run.Conversation.FlowState.AwaitingInputFor = kind

	return transition{kind: suspend}
}

func (x *execution) terminate(last *models.Node) {
	if x.run.Conversation.FlowState != nil {
		x.logger.DebugContext(x.ctx, "flow finished", "node_id", last.ID, "hops", x.hops)
	}

	x.run.Conversation.FlowState = nil
	x.result.Terminal = true
	x.trace(Step{Kind: StepTerminal, NodeID: last.ID})
}

func (x *execution) emit(part models.OutboundPayload) {
	if part.Empty() {
		return
	}

	x.result.Parts = append(x.result.Parts, part)
}

func (x *execution) render(text string) string {
	data := template.Data(x.run.Conversation, x.bindings(), x.run.Message)

	rendered, err := template.RenderString(text, data)
	if err != nil {
		x.logger.WarnContext(x.ctx, "template failed, sending raw text", "error", err)

		return text
	}

	return rendered
}

func (x *execution) bindings() map[string]any {
	return models.Bindings(x.run.Conversation.Context, x.run.Scenario.Variables)
}

func (x *execution) actionEnv() actions.Env {
	return actions.Env{
		Scenario:     x.run.Scenario,
		Conversation: x.run.Conversation,
		Message:      x.run.Message,
		Simulate:     x.run.Simulate,
	}
}

func (x *execution) trace(step Step) {
	x.run.Trace.Add(step)
}

func (x *execution) configError(err *ConfigError) {
	x.reportConfigError(x.ctx, x.run, err)
}

func (e *Executor) reportConfigError(ctx context.Context, run *Run, err *ConfigError) {
	e.logger.WarnContext(ctx, "scenario configuration error",
		"kind", err.Kind,
		"scenario_id", err.ScenarioID,
		"node_id", err.NodeID,
		"reason", err.Reason)
	e.metrics.ConfigError(err.Kind)
	run.Trace.Add(Step{Kind: StepConfigError, ScenarioID: err.ScenarioID, NodeID: err.NodeID, Error: err.Error()})
}
