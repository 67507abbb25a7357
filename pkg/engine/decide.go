package engine

import (
	"context"
	"fmt"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/matcher"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/dukex/pagebot/pkg/template"
)

const subScriptProducts = 10

// Values of the match source recorded on the processing span.
const (
	sourceAgent = "agent"
	sourceFlow  = "flow"
	sourceAI    = "ai"
	sourceNone  = "none"
)

// decide picks what answers the inbound message, in order: agent handoff, the active flow, a
// postback event trigger, keyword triggers and sub-scripts, the conversation_started event, AI.
func (e *Engine) decide(ctx context.Context, t *turn) error {
	if t.conversation.Status == models.ConversationStatusPending {
		t.result = &flow.Result{ProcessedBy: models.ProcessedByAgent}
		t.source = sourceAgent
		t.trace.Add(flow.Step{Kind: flow.StepMatch, Detail: "conversation waits for an agent"})

		return nil
	}

	if t.conversation.FlowState != nil {
		resumed, err := e.resume(ctx, t)
		if err != nil || resumed {
			return err
		}
	}

	if t.message.Payload != "" && e.apply(ctx, t, matcher.Events(t.scenarios, t.message.Payload)) {
		return nil
	}

	if e.apply(ctx, t, e.matcher.Match(t.scenarios, t.message.Text, t.conversation.Context)) {
		return nil
	}

	if t.created && e.apply(ctx, t, matcher.Events(t.scenarios, models.EventConversationStarted)) {
		return nil
	}

	e.fallback(ctx, t)

	return nil
}

// resume hands the message to the flow the conversation is in. It reports false when the flow could
// not continue and matching should run instead.
func (e *Engine) resume(ctx context.Context, t *turn) (bool, error) {
	state := t.conversation.FlowState

	scenario, err := e.flowScenario(ctx, t, state)
	if err != nil {
		return false, err
	}

	if scenario == nil {
		t.logger.WarnContext(ctx, "flow scenario is no longer published, flow cleared",
			"scenario_id", state.ScenarioID,
			"version", state.Version)
		t.conversation.FlowState = nil

		return false, nil
	}

	t.trace.Add(flow.Step{
		Kind:       flow.StepMatch,
		ScenarioID: scenario.ID,
		NodeID:     state.CurrentNodeID,
		Detail:     "resume " + string(state.AwaitingInputFor),
	})

	run := e.newRun(t, scenario)

	result, err := e.executor.Resume(ctx, run)
	if err != nil {
		return false, nil
	}

	t.use(run.Scenario, result)
	t.source = sourceFlow

	return true, nil
}

// flowScenario returns the snapshot a running flow started on, the latest published one when that
// version is gone, or nil when the scenario is not published at all.
func (e *Engine) flowScenario(ctx context.Context, t *turn, state *models.FlowState) (*models.Scenario, error) {
	if t.draft != nil && t.draft.ID == state.ScenarioID {
		return t.draft, nil
	}

	for _, scenario := range t.scenarios {
		if scenario.ID == state.ScenarioID && scenario.PublishedVersion == state.Version {
			return scenario, nil
		}
	}

	if state.Version > 0 {
		scenario, err := e.snapshots.Version(ctx, state.ScenarioID, state.Version)
		if err == nil {
			return scenario, nil
		}

		if !persistence.IsVersionNotFound(err) {
			return nil, storageError("load flow scenario", err)
		}
	}

	scenario, err := e.snapshots.Published(ctx, state.ScenarioID)
	if err == nil {
		return scenario, nil
	}

	if persistence.IsVersionNotFound(err) || persistence.IsScenarioNotFound(err) || isNotPublished(err) {
		return nil, nil
	}

	return nil, storageError("load flow scenario", err)
}

// apply takes the first candidate that produces a result. A trigger whose entry node is broken
// falls through to the next candidate.
func (e *Engine) apply(ctx context.Context, t *turn, candidates []matcher.Result) bool {
	for i := range candidates {
		candidate := &candidates[i]

		t.trace.Add(flow.Step{
			Kind:       flow.StepMatch,
			ScenarioID: candidate.Scenario.ID,
			Detail: fmt.Sprintf("%s %s keyword=%q priority=%d score=%.2f",
				candidate.SourceType, candidate.TargetID, candidate.Keyword, candidate.Priority, candidate.Score),
		})

		if candidate.SourceType == matcher.SourceSubScript {
			e.subScript(ctx, t, candidate)
			t.source = string(candidate.SourceType)

			return true
		}

		if e.startTrigger(ctx, t, candidate.Scenario, candidate.Trigger) {
			t.source = string(candidate.SourceType)

			return true
		}
	}

	return false
}

func (e *Engine) startTrigger(ctx context.Context, t *turn, scenario *models.Scenario, trigger *models.Trigger) bool {
	entryID := trigger.EntryNodeID
	if entryID == "" {
		if entry := scenario.EntryNode(); entry != nil {
			entryID = entry.ID
		}
	}

	run := e.newRun(t, scenario)

	result, err := e.executor.Start(ctx, run, entryID)
	if err != nil {
		return false
	}

	t.logger.InfoContext(ctx, "trigger matched",
		"scenario_id", scenario.ID,
		"trigger_id", trigger.ID,
		"entry_node_id", entryID)
	t.use(run.Scenario, result)

	return true
}

// subScript renders a flat rule: its response template, the products of its group and its action.
func (e *Engine) subScript(ctx context.Context, t *turn, candidate *matcher.Result) {
	sub := candidate.SubScript
	scenario := candidate.Scenario
	result := &flow.Result{ProcessedBy: models.ProcessedByScript, Terminal: true}

	if sub.ResponseTemplate != "" {
		bindings := models.Bindings(t.conversation.Context, scenario.Variables)
		data := template.Data(t.conversation, bindings, t.message)

		text, err := template.RenderString(sub.ResponseTemplate, data)
		if err != nil {
			t.logger.WarnContext(ctx, "sub-script template failed, sending raw text", "sub_script_id", sub.ID, "error", err)
			text = sub.ResponseTemplate
		}

		result.Parts = append(result.Parts, models.OutboundPayload{Text: text})
	}

	if sub.ProductGroupID != "" && e.collab.Catalog != nil {
		products, err := e.collab.Catalog.GetProducts(ctx, sub.ProductGroupID, subScriptProducts)
		if err != nil {
			t.logger.ErrorContext(ctx, "catalog lookup failed", "sub_script_id", sub.ID, "error", err)
		} else if cards := flow.ProductCards(products); len(cards) > 0 {
			result.Parts = append(result.Parts, models.OutboundPayload{
				Attachments: []models.Attachment{{Type: models.AttachmentCarousel, Cards: cards}},
			})
		}
	}

	if sub.Action != nil && e.collab.Actions != nil {
		actionResult := e.collab.Actions.Execute(ctx, sub.Action, actions.Env{
			Scenario:     scenario,
			Conversation: t.conversation,
			Message:      t.message,
			Simulate:     t.simulate,
		})
		result.Actions = append(result.Actions, actionResult)
		t.trace.Add(flow.Step{Kind: flow.StepAction, ScenarioID: scenario.ID, Action: actionResult})
	}

	t.logger.InfoContext(ctx, "sub-script matched", "scenario_id", scenario.ID, "sub_script_id", sub.ID)
	t.use(scenario, result)
}

// fallback asks the AI for a reply when nothing scripted answered.
func (e *Engine) fallback(ctx context.Context, t *turn) {
	t.result = &flow.Result{ProcessedBy: models.ProcessedByNone}
	t.source = sourceNone

	if !t.useAI || e.collab.AI == nil {
		t.trace.Add(flow.Step{Kind: flow.StepAI, Detail: "skipped"})

		return
	}

	scenario, enabled := aiScenario(t.page, t.scenarios)
	if !enabled {
		t.trace.Add(flow.Step{Kind: flow.StepAI, Detail: "disabled"})

		return
	}

	t.result.ProcessedBy = models.ProcessedByAI
	t.scenario = scenario
	t.source = sourceAI

	text, err := e.collab.AI.Respond(ctx, ai.Request{
		Conversation: t.conversation,
		Scenario:     scenario,
		Page:         t.page,
		Message:      t.message,
		Unsaved:      t.inbound == nil,
	})
	if err != nil {
		t.aiFailed = true
		t.trace.Add(flow.Step{Kind: flow.StepAI, Error: err.Error()})

		return
	}

	t.trace.Add(flow.Step{Kind: flow.StepAI, Detail: text})
	t.result.Parts = append(t.result.Parts, models.OutboundPayload{Text: text})
}

// aiScenario picks the AI config owner: the first AI-enabled scenario in priority order, else the page.
func aiScenario(page *models.Page, scenarios []*models.Scenario) (*models.Scenario, bool) {
	var best *models.Scenario

	for _, scenario := range scenarios {
		if !scenario.IsActive() || !scenario.AIEnabled {
			continue
		}

		if best == nil || scenario.Priority > best.Priority ||
			(scenario.Priority == best.Priority && scenario.ID < best.ID) {
			best = scenario
		}
	}

	if best != nil {
		return best, true
	}

	return nil, page != nil && page.AIEnabled
}

func (e *Engine) newRun(t *turn, scenario *models.Scenario) *flow.Run {
	return &flow.Run{
		Scenario:     scenario,
		Conversation: t.conversation,
		Page:         t.page,
		Message:      t.message,
		Simulate:     t.simulate,
		DisableAI:    !t.useAI,
		Trace:        t.trace,
	}
}

func (t *turn) use(scenario *models.Scenario, result *flow.Result) {
	t.scenario = scenario
	t.result = result
	t.aiFailed = t.aiFailed || result.AIFailed
}
