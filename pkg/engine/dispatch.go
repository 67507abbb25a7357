package engine

import (
	"context"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/models"
)

// finish persists the turn and delivers its single outbound message. The reply is stored before it
// is sent so a redelivered mid finds it and never sends twice.
func (e *Engine) finish(ctx context.Context, t *turn) (*Outcome, error) {
	if t.result == nil {
		t.result = &flow.Result{ProcessedBy: models.ProcessedByNone}
	}

	now := e.now().UTC()
	status := models.MessageStatusProcessed

	if t.aiFailed {
		status = models.MessageStatusError
	}

	outcome := &Outcome{
		ConversationID: t.conversation.ID,
		ProcessedBy:    t.result.ProcessedBy,
		Status:         status,
	}

	if t.inbound != nil {
		outcome.InboundID = t.inbound.ID
	}

	var outbound *models.Message

	if t.result.Responded() {
		payload := t.result.Payload()
		outbound = &models.Message{
			ID:             models.NewID(),
			ConversationID: t.conversation.ID,
			Direction:      models.DirectionOut,
			SenderType:     models.SenderBot,
			Text:           payload.Text,
			Attachments:    payload.Attachments,
			ProcessedBy:    t.result.ProcessedBy,
			Status:         models.MessageStatusProcessed,
			ReplyToID:      outcome.InboundID,
			CreatedAt:      now,
		}
		outcome.Outbound = outbound
	}

	switch {
	case outbound != nil && outbound.Text != "":
		t.conversation.LastMessage = outbound.Text
	case t.message != nil && t.message.Text != "":
		t.conversation.LastMessage = t.message.Text
	}

	t.conversation.LastUpdated = now

	if t.simulate {
		t.trace.Add(flow.Step{Kind: flow.StepDispatch, Detail: "simulated"})
		outcome.Steps = t.trace.Steps

		return outcome, nil
	}

	err := e.persist(ctx, t, outbound, status)
	if err != nil {
		return nil, err
	}

	if outbound != nil && t.deliver {
		e.deliver(ctx, t, outbound)
	}

	e.publishOutcome(ctx, t, outcome)

	outcome.Steps = t.trace.Steps

	return outcome, nil
}

func (e *Engine) persist(ctx context.Context, t *turn, outbound *models.Message, status models.MessageStatus) error {
	messages := e.store.Messages()

	if outbound != nil {
		err := messages.Save(ctx, outbound)
		if err != nil {
			return storageError("save outbound message", err)
		}
	}

	err := e.store.Conversations().Save(ctx, t.conversation)
	if err != nil {
		return storageError("save conversation", err)
	}

	if t.inbound != nil {
		err = messages.UpdateStatus(ctx, t.inbound.ID, status, t.result.ProcessedBy)
		if err != nil {
			return storageError("update inbound message", err)
		}

		t.inbound.Status = status
		t.inbound.ProcessedBy = t.result.ProcessedBy
	}

	return nil
}

// deliver sends the reply. A failed send is recorded on the outbound message only.
func (e *Engine) deliver(ctx context.Context, t *turn, outbound *models.Message) {
	if e.collab.Sender == nil {
		return
	}

	payload := models.OutboundPayload{Text: outbound.Text, Attachments: outbound.Attachments}

	providerID, err := e.collab.Sender.Send(ctx, t.conversation.PageID, t.conversation.PSID, payload)
	if err != nil {
		e.metrics.Delivery(string(models.MessageStatusError))
		t.logger.ErrorContext(ctx, "delivery failed", "message_id", outbound.ID, "error", err)
		t.trace.Add(flow.Step{Kind: flow.StepDispatch, Error: err.Error()})

		outbound.Status = models.MessageStatusError

		err = e.store.Messages().UpdateStatus(ctx, outbound.ID, models.MessageStatusError, "")
		if err != nil {
			t.logger.ErrorContext(ctx, "failed to record delivery failure", "message_id", outbound.ID, "error", err)
		}

		return
	}

	e.metrics.Delivery(string(models.MessageStatusSent))
	t.trace.Add(flow.Step{Kind: flow.StepDispatch, Detail: providerID})

	outbound.Status = models.MessageStatusSent
	outbound.ProviderMessageID = providerID

	err = e.store.Messages().MarkSent(ctx, outbound.ID, providerID)
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to record delivery", "message_id", outbound.ID, "error", err)
	}
}

func (e *Engine) publishOutcome(ctx context.Context, t *turn, outcome *Outcome) {
	if e.publisher == nil {
		return
	}

	key := t.conversation.Key()
	scenarioID := ""

	if t.scenario != nil {
		scenarioID = t.scenario.ID
	}

	processed := events.MessageProcessed{
		BaseEvent:      events.NewBaseEvent(events.MessageProcessedEvent, t.conversation.PageID),
		ConversationID: t.conversation.ID,
		InboundID:      outcome.InboundID,
		ProcessedBy:    outcome.ProcessedBy,
		ScenarioID:     scenarioID,
		Status:         string(outcome.Status),
	}

	if t.message != nil {
		processed.MID = t.message.MID
	}

	if outcome.Outbound != nil {
		processed.OutboundID = outcome.Outbound.ID
	}

	e.publish(ctx, t, key, processed)

	for _, result := range t.result.Actions {
		if !result.Failed() {
			continue
		}

		e.publish(ctx, t, key, events.ActionFailed{
			BaseEvent:      events.NewBaseEvent(events.ActionFailedEvent, t.conversation.PageID),
			ConversationID: t.conversation.ID,
			ScenarioID:     scenarioID,
			ActionType:     result.Type,
			Error:          result.Error,
		})
	}

	if t.startStatus != models.ConversationStatusPending && t.conversation.Status == models.ConversationStatusPending {
		e.publish(ctx, t, key, events.AgentTransferRequested{
			BaseEvent:      events.NewBaseEvent(events.AgentTransferRequestedEvent, t.conversation.PageID),
			ConversationID: t.conversation.ID,
			PSID:           t.conversation.PSID,
			ScenarioID:     scenarioID,
			LastMessage:    t.conversation.LastMessage,
		})
	}
}

func (e *Engine) publish(ctx context.Context, t *turn, key string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to publish outcome event", "event_type", event.GetType(), "error", err)
	}
}

// ReportActionFailure publishes a fire-and-forget webhook failure that surfaced after its turn ended.
func (e *Engine) ReportActionFailure(ctx context.Context, failure actions.Failure) {
	if e.publisher == nil {
		return
	}

	event := events.ActionFailed{
		BaseEvent:      events.NewBaseEvent(events.ActionFailedEvent, ""),
		ConversationID: failure.ConversationID,
		ScenarioID:     failure.ScenarioID,
		ActionType:     failure.Action.Type,
	}

	if failure.Result != nil {
		event.Error = failure.Result.Error
	}

	err := e.publisher.Publish(ctx, failure.ConversationID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish action failure", "conversation_id", failure.ConversationID, "error", err)
	}
}
