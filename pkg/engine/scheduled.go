package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
)

var ErrNotTimeTrigger = errors.New("trigger is not an active time trigger")

// RunTimeTrigger starts the trigger's entry node for every active conversation of the scenario's page
// that is not inside a flow. It returns how many conversations were started.
func (e *Engine) RunTimeTrigger(ctx context.Context, scenarioID, triggerID string) (int, error) {
	scenario, err := e.snapshots.Published(ctx, scenarioID)
	if err != nil {
		if isNotPublished(err) {
			return 0, nil
		}

		return 0, storageError("load scenario", err)
	}

	active, err := e.store.Scenarios().PublishedForPage(ctx, scenario.PageID)
	if err != nil {
		return 0, storageError("load published scenarios", err)
	}

	scenario = find(active, scenarioID)
	if scenario == nil {
		return 0, nil
	}

	trigger := scenario.Trigger(triggerID)
	if trigger == nil || trigger.Type != models.TriggerTypeTime || !trigger.IsActive {
		return 0, fmt.Errorf("%s/%s: %w", scenarioID, triggerID, ErrNotTimeTrigger)
	}

	conversations, err := e.store.Conversations().ListByPage(ctx, scenario.PageID)
	if err != nil {
		return 0, storageError("list conversations", err)
	}

	started := 0

	for _, candidate := range conversations {
		if candidate.Status != models.ConversationStatusActive || candidate.FlowState != nil {
			continue
		}

		ok, err := e.startTimed(ctx, candidate, scenario, trigger)
		if err != nil {
			return started, err
		}

		if ok {
			started++
		}
	}

	e.logger.InfoContext(ctx, "time trigger ran",
		"scenario_id", scenarioID,
		"trigger_id", triggerID,
		"conversations", started)

	return started, nil
}

func (e *Engine) startTimed(ctx context.Context, candidate *models.Conversation, scenario *models.Scenario, trigger *models.Trigger) (bool, error) {
	key := candidate.Key()

	release, err := e.locker.Acquire(ctx, key, e.config.LockTTL)
	if err != nil {
		return false, storageError("lock conversation "+key, err)
	}
	defer release()

	t, err := e.reload(ctx, candidate.PageID, candidate.PSID)
	if err != nil || t == nil {
		return false, err
	}

	if t.conversation.Status != models.ConversationStatusActive || t.conversation.FlowState != nil {
		return false, nil
	}

	t.trace.Add(flow.Step{Kind: flow.StepMatch, ScenarioID: scenario.ID, Detail: "time trigger " + trigger.ID})

	if !e.startTrigger(ctx, t, scenario, trigger) {
		return false, nil
	}

	_, err = e.finish(ctx, t)

	return err == nil, err
}

// ResumeExpiredWaits continues every flow parked on a wait node whose time has come. It returns
// how many flows were continued.
func (e *Engine) ResumeExpiredWaits(ctx context.Context) (int, error) {
	now := e.now().UTC()

	waiting, err := e.store.Conversations().ListAwaitingResume(ctx, now)
	if err != nil {
		return 0, storageError("list waiting conversations", err)
	}

	resumed := 0

	for _, candidate := range waiting {
		ok, err := e.continueWait(ctx, candidate, now)
		if err != nil {
			return resumed, err
		}

		if ok {
			resumed++
		}
	}

	return resumed, nil
}

func (e *Engine) continueWait(ctx context.Context, candidate *models.Conversation, now time.Time) (bool, error) {
	key := candidate.Key()

	release, err := e.locker.Acquire(ctx, key, e.config.LockTTL)
	if err != nil {
		return false, storageError("lock conversation "+key, err)
	}
	defer release()

	t, err := e.reload(ctx, candidate.PageID, candidate.PSID)
	if err != nil || t == nil {
		return false, err
	}

	state := t.conversation.FlowState
	if state == nil || state.AwaitingInputFor != models.AwaitWait || state.ResumeAt == nil || state.ResumeAt.After(now) {
		return false, nil
	}

	if t.conversation.Status == models.ConversationStatusPending {
		return false, nil
	}

	scenario, err := e.flowScenario(ctx, t, state)
	if err != nil {
		return false, err
	}

	if scenario == nil {
		t.conversation.FlowState = nil
		t.result = &flow.Result{ProcessedBy: models.ProcessedByNone, Terminal: true}

		_, err = e.finish(ctx, t)

		return false, err
	}

	run := e.newRun(t, scenario)

	result, err := e.executor.Continue(ctx, run)
	if err != nil {
		t.result = &flow.Result{ProcessedBy: models.ProcessedByNone, Terminal: true}
	} else {
		t.use(run.Scenario, result)
	}

	_, err = e.finish(ctx, t)

	return err == nil, err
}

// reload reads the conversation again under its lock. It returns nil when the conversation is gone.
func (e *Engine) reload(ctx context.Context, pageID, psid string) (*turn, error) {
	conv, err := e.store.Conversations().GetByKey(ctx, pageID, psid)
	if err != nil {
		if persistence.IsConversationNotFound(err) {
			return nil, nil
		}

		return nil, storageError("reload conversation", err)
	}

	if conv.Context == nil {
		conv.Context = make(map[string]any)
	}

	t := &turn{
		logger:       e.logger.With("conversation_id", conv.ID, "page_id", pageID, "psid", psid),
		conversation: conv,
		startStatus:  conv.Status,
		deliver:      true,
		useAI:        true,
		trace:        flow.NewTrace(),
	}

	err = e.load(ctx, t)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func find(scenarios []*models.Scenario, id string) *models.Scenario {
	for _, scenario := range scenarios {
		if scenario.ID == id {
			return scenario
		}
	}

	return nil
}
