// Package engine runs the inbound message pipeline: conversation resolution, trigger matching, flow
// execution, AI fallback and response dispatch, one conversation at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/matcher"
	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Collaborators are the side-effecting services the engine drives. AI and Catalog may be nil.
type Collaborators struct {
	Actions flow.ActionRunner
	AI      flow.Responder
	Catalog flow.Catalog
	Sender  messenger.Sender
}

type Option func(*Engine)

func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config.withDefaults()
	}
}

// WithLocker replaces the in-process conversation lock, e.g. with a Redis lock shared by workers.
func WithLocker(locker conversation.Locker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithPublisher enables outcome events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = collector
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithScorer(scorer matcher.ConfidenceScorer) Option {
	return func(e *Engine) {
		e.matcherOpts = append(e.matcherOpts, matcher.WithScorer(scorer))
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type Engine struct {
	logger      *slog.Logger
	store       persistence.Persistence
	collab      Collaborators
	config      Config
	locker      conversation.Locker
	publisher   eventbus.EventPublisher
	metrics     *metrics.Collector
	tracer      trace.Tracer
	now         func() time.Time
	matcherOpts []matcher.Option

	resolver  *conversation.Resolver
	snapshots *Snapshots
	matcher   *matcher.Matcher
	executor  *flow.Executor
}

func New(logger *slog.Logger, store persistence.Persistence, collab Collaborators, opts ...Option) *Engine {
	e := &Engine{
		logger: logger.With("module", "engine"),
		store:  store,
		collab: collab,
		config: DefaultConfig(),
		locker: conversation.NewInMemoryLocker(),
		tracer: otel.Tracer("pagebot-engine"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.resolver = conversation.NewResolver(logger, store.Conversations(), store.Customers(), conversation.WithClock(e.now))
	e.snapshots = NewSnapshots(store.Scenarios())
	e.matcher = matcher.New(logger, e.matcherOpts...)
	e.executor = flow.NewExecutor(logger, collab.Actions, collab.AI, collab.Catalog, e.snapshots,
		flow.WithMaxHops(e.config.MaxHops),
		flow.WithMetrics(e.metrics),
		flow.WithClock(e.now),
		flow.WithTracer(e.tracer))

	return e
}

// Snapshots exposes the published scenario reader the engine runs on.
func (e *Engine) Snapshots() *Snapshots {
	return e.snapshots
}

// Outcome reports what processing one inbound message did.
type Outcome struct {
	ConversationID string               `json:"conversation_id"`
	InboundID      string               `json:"inbound_id,omitempty"`
	Outbound       *models.Message      `json:"outbound,omitempty"`
	ProcessedBy    models.ProcessedBy   `json:"processed_by"`
	Status         models.MessageStatus `json:"status"`
	Duplicate      bool                 `json:"duplicate"`
	Steps          []flow.Step          `json:"steps"`
}

// turn is the state of one pass through the pipeline for a conversation.
type turn struct {
	logger       *slog.Logger
	message      *models.InboundMessage
	conversation *models.Conversation
	page         *models.Page
	inbound      *models.Message
	scenarios    []*models.Scenario
	draft        *models.Scenario
	created      bool
	simulate     bool
	deliver      bool
	useAI        bool
	aiFailed     bool
	source       string
	startStatus  models.ConversationStatus
	trace        *flow.Trace
	result       *flow.Result
	scenario     *models.Scenario
}

// Process runs the pipeline for one inbound message under the conversation lock. Storage failures
// are returned wrapped in ErrStorageUnavailable; configuration and collaborator failures are not
// errors.
func (e *Engine) Process(ctx context.Context, message *models.InboundMessage) (*Outcome, error) {
	started := e.now()
	key := message.ConversationKey()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.process",
		attribute.String(otelhelper.PageIDKey, message.PageID),
		attribute.String(otelhelper.PSIDKey, message.SenderID),
		attribute.String(otelhelper.MIDKey, message.MID),
	)
	defer span.End()

	release, err := e.locker.Acquire(ctx, key, e.config.LockTTL)
	if err != nil {
		err = storageError("lock conversation "+key, err)
		otelhelper.SetError(span, err)

		return nil, err
	}
	defer release()

	t := &turn{
		logger:  e.logger.With("page_id", message.PageID, "psid", message.SenderID, "mid", message.MID),
		message: message,
		deliver: true,
		useAI:   true,
		trace:   flow.NewTrace(),
	}

	duplicate, err := e.begin(ctx, t)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if duplicate {
		e.metrics.Duplicate()
		t.logger.InfoContext(ctx, "duplicate delivery skipped", "conversation_id", t.conversation.ID)

		return &Outcome{ConversationID: t.conversation.ID, Duplicate: true, Steps: t.trace.Steps}, nil
	}

	span.SetAttributes(attribute.String(otelhelper.ConversationIDKey, t.conversation.ID))

	err = e.load(ctx, t)
	if err == nil {
		err = e.decide(ctx, t)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.MatchSourceKey, t.source))

	if t.scenario != nil {
		span.SetAttributes(attribute.String(otelhelper.ScenarioIDKey, t.scenario.ID))
	}

	outcome, err := e.finish(ctx, t)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.metrics.MessageProcessed(string(outcome.ProcessedBy), string(outcome.Status), e.now().Sub(started))

	return outcome, nil
}

// begin resolves the conversation and records the inbound message. It reports a duplicate when the
// mid was already handled.
func (e *Engine) begin(ctx context.Context, t *turn) (bool, error) {
	conv, created, err := e.resolver.Resolve(ctx, t.message.PageID, t.message.SenderID)
	if err != nil {
		return false, storageError("resolve conversation", err)
	}

	t.conversation = conv
	t.created = created
	t.startStatus = conv.Status
	t.logger = t.logger.With("conversation_id", conv.ID)

	messages := e.store.Messages()

	existing, err := messages.FindByMID(ctx, conv.ID, t.message.MID)

	switch {
	case err == nil:
		return e.redelivered(ctx, t, existing)
	case !persistence.IsMessageNotFound(err):
		return false, storageError("find message", err)
	}

	inbound := &models.Message{
		ID:             models.NewID(),
		ConversationID: conv.ID,
		Direction:      models.DirectionIn,
		SenderType:     models.SenderCustomer,
		Text:           t.message.Text,
		Status:         models.MessageStatusReceived,
		MID:            t.message.MID,
		CreatedAt:      e.now().UTC(),
	}

	err = messages.Save(ctx, inbound)
	if persistence.IsDuplicateMessage(err) {
		return true, nil
	}

	if err != nil {
		return false, storageError("save inbound message", err)
	}

	t.inbound = inbound

	return false, nil
}

// redelivered decides what to do with a mid that is already stored. A message left in received
// state without a reply was interrupted before any effect and is processed again.
func (e *Engine) redelivered(ctx context.Context, t *turn, existing *models.Message) (bool, error) {
	if existing.Status != models.MessageStatusReceived {
		return true, nil
	}

	reply, err := e.store.Messages().FindReply(ctx, existing.ID)

	switch {
	case err == nil:
		err = e.store.Messages().UpdateStatus(ctx, existing.ID, models.MessageStatusProcessed, reply.ProcessedBy)
		if err != nil {
			return false, storageError("update inbound message", err)
		}

		return true, nil
	case !persistence.IsMessageNotFound(err):
		return false, storageError("find reply", err)
	}

	t.logger.InfoContext(ctx, "resuming interrupted message", "message_id", existing.ID)
	t.inbound = existing

	return false, nil
}

// load reads the page and the published scenarios of the conversation's page.
func (e *Engine) load(ctx context.Context, t *turn) error {
	page, err := e.page(ctx, t.conversation.PageID)
	if err != nil {
		return err
	}

	t.page = page

	if t.scenarios != nil {
		return nil
	}

	scenarios, err := e.store.Scenarios().PublishedForPage(ctx, t.conversation.PageID)
	if err != nil {
		return storageError("load published scenarios", err)
	}

	t.scenarios = scenarios

	return nil
}

func (e *Engine) page(ctx context.Context, pageID string) (*models.Page, error) {
	page, err := e.store.Pages().GetByID(ctx, pageID)
	if persistence.IsPageNotFound(err) {
		return &models.Page{ID: pageID}, nil
	}

	if err != nil {
		return nil, storageError(fmt.Sprintf("load page %s", pageID), err)
	}

	return page, nil
}
