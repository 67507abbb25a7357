// Package actions executes the side effects declared by sub-scripts and action nodes.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/dukex/pagebot/pkg/template"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultWebhookTimeout = 10 * time.Second

var (
	ErrNoCustomer     = errors.New("conversation has no customer")
	ErrUnknownAction  = errors.New("unknown action type")
	ErrWebhookStatus  = errors.New("webhook returned non-2xx status")
	ErrNoConversation = errors.New("action needs a conversation")
)

// Env is what an action may read and mutate. Conversation is mutated in place by set_variable,
// call_webhook in blocking mode and transfer_to_agent; the caller persists it.
type Env struct {
	Scenario     *models.Scenario
	Conversation *models.Conversation
	Message      *models.InboundMessage
	Simulate     bool
}

// Failure describes a fire-and-forget webhook that failed after Execute returned.
type Failure struct {
	ConversationID string
	ScenarioID     string
	Action         *models.Action
	Result         *models.ActionResult
}

type Option func(*Executor)

func WithHTTPClient(client *resty.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

func WithWebhookTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Executor) {
		e.metrics = collector
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithFailureHandler registers fn for background webhook failures.
func WithFailureHandler(fn func(ctx context.Context, failure Failure)) Option {
	return func(e *Executor) {
		e.onFailure = fn
	}
}

type Executor struct {
	logger    *slog.Logger
	customers persistence.CustomerRepository
	client    *resty.Client
	timeout   time.Duration
	metrics   *metrics.Collector
	onFailure func(ctx context.Context, failure Failure)
	inflight  sync.WaitGroup
	now       func() time.Time
	tracer    trace.Tracer
}

func New(logger *slog.Logger, customers persistence.CustomerRepository, opts ...Option) *Executor {
	e := &Executor{
		logger:    logger.With("module", "actions"),
		customers: customers,
		client:    resty.New(),
		timeout:   DefaultWebhookTimeout,
		now:       time.Now,
		tracer:    otel.Tracer("pagebot-actions"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs one action. Failures are reported in the result, never returned.
func (e *Executor) Execute(ctx context.Context, action *models.Action, env Env) *models.ActionResult {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "actions.execute",
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.String(otelhelper.ConversationIDKey, conversationID(env)),
	)
	defer span.End()

	if env.Scenario != nil {
		span.SetAttributes(attribute.String(otelhelper.ScenarioIDKey, env.Scenario.ID))
	}

	started := e.now()
	result := &models.ActionResult{
		Type:      action.Type,
		StartedAt: started,
	}

	var err error

	if env.Conversation == nil {
		err = ErrNoConversation
	} else {
		switch action.Type {
		case models.ActionTypeAddTag:
			err = e.addTag(ctx, action, env, result)
		case models.ActionTypeSetVariable:
			err = e.setVariable(action, env, result)
		case models.ActionTypeCallWebhook:
			err = e.callWebhook(ctx, action, env, result)
		case models.ActionTypeTransferToAgent:
			err = e.transferToAgent(action, env, result)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
		}
	}

	if err != nil {
		otelhelper.SetError(span, err)
		result.Status = models.ActionStatusFailed
		result.Error = err.Error()

		e.logger.WarnContext(ctx, "action failed",
			"action_type", action.Type,
			"conversation_id", conversationID(env),
			"error", err)
	} else if result.Status == "" {
		result.Status = models.ActionStatusSuccess
	}

	result.DurationMs = e.now().Sub(started).Milliseconds()
	span.SetAttributes(attribute.String("pagebot.action.status", string(result.Status)))
	e.metrics.Action(string(action.Type), string(result.Status))

	return result
}

// Wait blocks until every fire-and-forget webhook has finished.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

func (e *Executor) addTag(ctx context.Context, action *models.Action, env Env, result *models.ActionResult) error {
	tag := strings.TrimSpace(action.TagName)
	result.Output = map[string]any{"tag": tag}

	if env.Simulate {
		result.Status = models.ActionStatusSkipped

		return nil
	}

	if env.Conversation.CustomerID == "" {
		return ErrNoCustomer
	}

	err := e.customers.AddTag(ctx, env.Conversation.CustomerID, tag)
	if err != nil {
		return fmt.Errorf("failed to add tag %q: %w", tag, err)
	}

	return nil
}

func (e *Executor) setVariable(action *models.Action, env Env, result *models.ActionResult) error {
	value := action.Value

	if text, ok := value.(string); ok && strings.Contains(text, "{{") {
		rendered, err := template.RenderString(text, templateData(env))
		if err != nil {
			return err
		}

		value = rendered
	}

	coerced, err := Assign(env.Scenario, env.Conversation, action.Key, value)
	if err != nil {
		return err
	}

	result.Output = map[string]any{"key": action.Key, "value": coerced}

	return nil
}

func (e *Executor) transferToAgent(action *models.Action, env Env, result *models.ActionResult) error {
	env.Conversation.Status = models.ConversationStatusPending
	env.Conversation.FlowState = nil

	result.Output = map[string]any{"note": action.Note}

	return nil
}

// Assign writes value under key in the conversation context, coerced to the declared variable type.
// On a coercion failure the prior value is left untouched.
func Assign(scenario *models.Scenario, conversation *models.Conversation, key string, value any) (any, error) {
	if scenario != nil {
		if variable := scenario.Variable(key); variable != nil {
			coerced, err := variable.Coerce(value)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", key, err)
			}

			value = coerced
		}
	}

	if conversation.Context == nil {
		conversation.Context = make(map[string]any)
	}

	conversation.Context[key] = value

	return value, nil
}

func templateData(env Env) map[string]any {
	var variables []*models.Variable
	if env.Scenario != nil {
		variables = env.Scenario.Variables
	}

	return template.Data(env.Conversation, models.Bindings(env.Conversation.Context, variables), env.Message)
}

func conversationID(env Env) string {
	if env.Conversation == nil {
		return ""
	}

	return env.Conversation.ID
}
