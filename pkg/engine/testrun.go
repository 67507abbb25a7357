package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/models"
)

const testRunPSID = "test-run"

// TestRunRequest drives one editor test run. Draft runs the unpublished draft instead of the latest
// published version. Simulate keeps the run free of stored records and external side effects.
type TestRunRequest struct {
	Message  string `json:"message"`
	Payload  string `json:"payload,omitempty"`
	PSID     string `json:"psid,omitempty"`
	Simulate bool   `json:"simulate"`
	UseAI    bool   `json:"use_ai"`
	Draft    bool   `json:"draft"`
}

type TestRunResult struct {
	Steps    []flow.Step       `json:"steps"`
	Messages []*models.Message `json:"messages"`
}

// TestRun runs the matching, flow and AI path against one scenario and returns the full trace.
// Replies are never sent to Messenger.
func (e *Engine) TestRun(ctx context.Context, scenarioID string, request TestRunRequest) (*TestRunResult, error) {
	scenario, err := e.testScenario(ctx, scenarioID, request.Draft)
	if err != nil {
		return nil, err
	}

	psid := strings.TrimSpace(request.PSID)
	if psid == "" {
		psid = testRunPSID + ":" + scenario.ID
	}

	message := &models.InboundMessage{
		PageID:    scenario.PageID,
		SenderID:  psid,
		Text:      strings.TrimSpace(request.Message),
		Payload:   strings.TrimSpace(request.Payload),
		MID:       "test-" + models.NewID(),
		Timestamp: e.now().UTC(),
	}

	t := &turn{
		logger:    e.logger.With("scenario_id", scenario.ID, "test_run", true),
		message:   message,
		scenarios: []*models.Scenario{scenario},
		simulate:  request.Simulate,
		useAI:     request.UseAI,
		trace:     flow.NewTrace(),
	}

	if request.Draft {
		t.draft = scenario
	}

	if request.Simulate {
		t.conversation = &models.Conversation{
			ID:          testRunPSID,
			PageID:      scenario.PageID,
			PSID:        psid,
			Status:      models.ConversationStatusActive,
			Context:     make(map[string]any),
			LastUpdated: message.Timestamp,
			CreatedAt:   message.Timestamp,
		}
		t.created = true
		t.startStatus = models.ConversationStatusActive

		return e.runTest(ctx, t)
	}

	release, err := e.locker.Acquire(ctx, message.ConversationKey(), e.config.LockTTL)
	if err != nil {
		return nil, storageError("lock conversation", err)
	}
	defer release()

	_, err = e.begin(ctx, t)
	if err != nil {
		return nil, err
	}

	return e.runTest(ctx, t)
}

func (e *Engine) runTest(ctx context.Context, t *turn) (*TestRunResult, error) {
	err := e.load(ctx, t)
	if err == nil {
		err = e.decide(ctx, t)
	}

	if err != nil {
		return nil, err
	}

	outcome, err := e.finish(ctx, t)
	if err != nil {
		return nil, err
	}

	inbound := t.inbound
	if inbound == nil {
		inbound = &models.Message{
			ConversationID: t.conversation.ID,
			Direction:      models.DirectionIn,
			SenderType:     models.SenderCustomer,
			Text:           t.message.Text,
			ProcessedBy:    outcome.ProcessedBy,
			Status:         outcome.Status,
			MID:            t.message.MID,
			CreatedAt:      t.message.Timestamp,
		}
	}

	messages := []*models.Message{inbound}
	if outcome.Outbound != nil {
		messages = append(messages, outcome.Outbound)
	}

	return &TestRunResult{Steps: outcome.Steps, Messages: messages}, nil
}

// testScenario loads the draft, made active so the matcher considers it, or the latest snapshot.
func (e *Engine) testScenario(ctx context.Context, scenarioID string, draft bool) (*models.Scenario, error) {
	if !draft {
		return e.snapshots.Published(ctx, scenarioID)
	}

	stored, err := e.store.Scenarios().GetByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	scenario, err := stored.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy draft %s: %w", scenarioID, err)
	}

	scenario.Status = models.ScenarioStatusActive

	return scenario, nil
}
