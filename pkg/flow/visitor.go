package flow

import (
	"fmt"
	"time"

	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultCarouselLimit = 10

var pricePrinter = message.NewPrinter(language.Vietnamese)

// visitor renders one node on entry and decides the transition out of it.
type visitor struct {
	x    *execution
	node *models.Node
	next transition
}

var _ models.ContentVisitor = (*visitor)(nil)

func (v *visitor) VisitText(content *models.TextContent) error {
	v.x.emit(models.OutboundPayload{Text: v.x.render(content.Text)})

	return nil
}

func (v *visitor) VisitMedia(content *models.MediaContent) error {
	part := models.OutboundPayload{
		Attachments: []models.Attachment{{
			Type:      models.AttachmentMedia,
			MediaType: content.MediaType,
			URL:       content.URL,
		}},
	}

	if content.Caption != "" {
		part.Text = v.x.render(content.Caption)
	}

	v.x.emit(part)

	return nil
}

func (v *visitor) VisitQuickReply(content *models.QuickReplyContent) error {
	v.x.promptQuickReply(content)
	v.next = v.x.await(models.AwaitQuickReply)

	return nil
}

func (v *visitor) VisitCarousel(content *models.CarouselContent) error {
	cards := content.Cards

	if content.Source == models.CarouselSourceProductGroup {
		cards = v.productCards(content)
	}

	limit := content.Limit
	if limit <= 0 || limit > defaultCarouselLimit {
		limit = defaultCarouselLimit
	}

	if len(cards) > limit {
		cards = cards[:limit]
	}

	if len(cards) > 0 {
		v.x.emit(models.OutboundPayload{
			Attachments: []models.Attachment{{Type: models.AttachmentCarousel, Cards: cards}},
		})
	}

	return nil
}

func (v *visitor) productCards(content *models.CarouselContent) []models.Card {
	groupID := content.ProductGroupID
	if groupID == "" {
		groupID = v.x.run.Scenario.ProductGroupID
	}

	products, err := v.x.catalog.GetProducts(v.x.ctx, groupID, content.Limit)
	if err != nil {
		v.x.logger.ErrorContext(v.x.ctx, "catalog lookup failed",
			"node_id", v.node.ID,
			"product_group_id", groupID,
			"error", err)
		v.x.trace(Step{Kind: StepNode, NodeID: v.node.ID, NodeType: v.node.Type, Error: err.Error()})

		return nil
	}

	return ProductCards(products)
}

// ProductCards renders catalog products as carousel cards with a Vietnamese price subtitle.
func ProductCards(products []models.Product) []models.Card {
	cards := make([]models.Card, 0, len(products))

	for _, product := range products {
		card := models.Card{
			Title:    product.Name,
			Subtitle: pricePrinter.Sprintf("%d ₫", int64(product.Price)),
		}

		if len(product.Images) > 0 {
			card.ImageURL = product.Images[0]
		}

		cards = append(cards, card)
	}

	return cards
}

func (v *visitor) VisitForm(content *models.FormContent) error {
	if len(content.Fields) == 0 {
		return nil
	}

	state := v.x.run.Conversation.FlowState
	state.FieldIndex = 0
	state.Retries = 0

	v.x.emit(models.OutboundPayload{Text: v.x.render(content.Fields[0].Prompt)})
	v.next = v.x.await(models.AwaitForm)

	return nil
}

func (v *visitor) VisitAction(content *models.ActionContent) error {
	for _, action := range content.Actions {
		result := v.x.actions.Execute(v.x.ctx, action, v.x.actionEnv())
		v.x.result.Actions = append(v.x.result.Actions, result)
		v.x.trace(Step{Kind: StepAction, NodeID: v.node.ID, Action: result})

		if action.Type == models.ActionTypeTransferToAgent && !result.Failed() {
			v.next = transition{kind: terminate}

			return nil
		}

		if action.Blocking && result.Failed() {
			v.x.logger.WarnContext(v.x.ctx, "blocking action failed, flow stopped",
				"node_id", v.node.ID,
				"action_type", action.Type)
			v.next = transition{kind: terminate}

			return nil
		}
	}

	return nil
}

func (v *visitor) VisitAIReply(content *models.AIReplyContent) error {
	if v.x.run.DisableAI || v.x.responder == nil {
		v.x.trace(Step{Kind: StepAI, NodeID: v.node.ID, Detail: "skipped"})

		return nil
	}

	text, err := v.x.responder.Respond(v.x.ctx, ai.Request{
		Conversation: v.x.run.Conversation,
		Scenario:     v.x.run.Scenario,
		Page:         v.x.run.Page,
		Message:      v.x.run.Message,
		Override:     content,
		Unsaved:      v.x.run.Simulate,
	})
	if err != nil {
		v.x.trace(Step{Kind: StepAI, NodeID: v.node.ID, Error: err.Error()})
		v.x.result.AIFailed = true
		v.x.result.ProcessedBy = models.ProcessedByAI

		return nil
	}

	v.x.trace(Step{Kind: StepAI, NodeID: v.node.ID, Detail: text})
	v.x.emit(models.OutboundPayload{Text: text})
	v.x.result.ProcessedBy = models.ProcessedByAI

	return nil
}

func (v *visitor) VisitWait(content *models.WaitContent) error {
	resumeAt := v.x.now().UTC().Add(time.Duration(content.Seconds) * time.Second)
	v.x.run.Conversation.FlowState.ResumeAt = &resumeAt
	v.next = v.x.await(models.AwaitWait)

	return nil
}

func (v *visitor) VisitChildScript(content *models.ChildScriptContent) error {
	child, err := v.x.snapshots.Published(v.x.ctx, content.ScenarioID)
	if err != nil {
		v.x.configError(&ConfigError{
			Kind:       KindChildScript,
			ScenarioID: v.x.run.Scenario.ID,
			NodeID:     v.node.ID,
			Reason:     fmt.Sprintf("child scenario %s: %v", content.ScenarioID, err),
		})
		v.next = transition{kind: terminate}

		return nil
	}

	target := content.NodeID
	if target == "" {
		if entry := child.EntryNode(); entry != nil {
			target = entry.ID
		}
	}

	if target == "" || child.Node(target) == nil {
		v.x.configError(&ConfigError{
			Kind:       KindChildScript,
			ScenarioID: child.ID,
			NodeID:     target,
			Reason:     "child scenario has no such entry node",
		})
		v.next = transition{kind: terminate}

		return nil
	}

	v.x.logger.InfoContext(v.x.ctx, "entering child scenario", "child_scenario_id", child.ID, "node_id", target)
	v.x.run.Scenario = child
	v.next = transition{kind: jump, target: target}

	return nil
}
