package flow

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/textnorm"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultFormRetries  = 3
	DefaultSkipKeyword  = "skip"
	defaultInvalidField = "Thông tin chưa hợp lệ, vui lòng nhập lại."
)

var (
	errEmptyAnswer = errors.New("answer is required")
	phoneChars     = strings.NewReplacer(" ", "", ".", "", "-", "", "(", "", ")", "")
	validate       = validator.New(validator.WithRequiredStructEnabled())
)

func (x *execution) promptQuickReply(content *models.QuickReplyContent) {
	x.emit(models.OutboundPayload{
		Text: x.render(content.Text),
		Attachments: []models.Attachment{{
			Type:         models.AttachmentQuickReply,
			QuickReplies: content.Options,
		}},
	})
}

// answerQuickReply picks the option whose payload equals the postback payload or whose title equals
// the text. A miss re-prompts and keeps waiting.
func (x *execution) answerQuickReply(node *models.Node) transition {
	content, ok := node.Content.(*models.QuickReplyContent)
	if !ok {
		return x.mismatch(node)
	}

	option := matchOption(content.Options, x.run.Message)
	if option == nil {
		x.trace(Step{Kind: StepInput, NodeID: node.ID, Detail: "no option matched, prompting again"})
		x.promptQuickReply(content)

		return transition{kind: suspend}
	}

	x.trace(Step{Kind: StepInput, NodeID: node.ID, Detail: "selected " + option.Title})

	if content.SaveTo != "" {
		x.assign(content.SaveTo, option.Title)
	}

	x.run.Conversation.FlowState.AwaitingInputFor = ""

	if option.NextNodeID != "" {
		return transition{kind: jump, target: option.NextNodeID}
	}

	return transition{kind: follow}
}

func matchOption(options []models.QuickReplyOption, message *models.InboundMessage) *models.QuickReplyOption {
	if message == nil {
		return nil
	}

	if message.Payload != "" {
		for i := range options {
			if options[i].Payload != "" && options[i].Payload == message.Payload {
				return &options[i]
			}
		}
	}

	for i := range options {
		if textnorm.Equal(options[i].Title, message.Text) {
			return &options[i]
		}
	}

	return nil
}

// answerForm stores the answer for the current field and prompts for the next one. Invalid answers
// are re-prompted until the retry budget runs out, which ends the flow.
func (x *execution) answerForm(node *models.Node) transition {
	content, ok := node.Content.(*models.FormContent)
	if !ok {
		return x.mismatch(node)
	}

	state := x.run.Conversation.FlowState
	if state.FieldIndex >= len(content.Fields) {
		return x.finishForm(content)
	}

	field := content.Fields[state.FieldIndex]

	answer := ""
	if x.run.Message != nil {
		answer = strings.TrimSpace(x.run.Message.Text)
	}

	if field.Required || !skipped(content, answer) {
		value, err := parseField(field, answer)
		if err != nil {
			return x.retryField(node, content, field, err)
		}

		x.assign(field.Key, value)
		x.trace(Step{Kind: StepInput, NodeID: node.ID, Detail: "field " + field.Key + " filled"})
	} else {
		x.trace(Step{Kind: StepInput, NodeID: node.ID, Detail: "field " + field.Key + " skipped"})
	}

	state.FieldIndex++
	state.Retries = 0

	if state.FieldIndex < len(content.Fields) {
		x.emit(models.OutboundPayload{Text: x.render(content.Fields[state.FieldIndex].Prompt)})

		return transition{kind: suspend}
	}

	return x.finishForm(content)
}

func (x *execution) retryField(node *models.Node, content *models.FormContent, field models.FormField, err error) transition {
	state := x.run.Conversation.FlowState
	state.Retries++

	retries := content.MaxRetries
	if retries <= 0 {
		retries = DefaultFormRetries
	}

	x.trace(Step{Kind: StepInput, NodeID: node.ID, Detail: "field " + field.Key + " rejected", Error: err.Error()})

	if state.Retries >= retries {
		x.logger.InfoContext(x.ctx, "form retries exhausted", "node_id", node.ID, "field", field.Key)

		return transition{kind: terminate}
	}

	message := field.ErrorMessage
	if message == "" {
		message = defaultInvalidField
	}

	x.emit(models.OutboundPayload{Text: x.render(message)})
	x.emit(models.OutboundPayload{Text: x.render(field.Prompt)})

	return transition{kind: suspend}
}

func (x *execution) finishForm(content *models.FormContent) transition {
	if content.SaveTo != "" {
		values := make(map[string]any, len(content.Fields))

		for _, field := range content.Fields {
			if value, ok := x.run.Conversation.Context[field.Key]; ok {
				values[field.Key] = value
			}
		}

		x.assign(content.SaveTo, values)
	}

	x.run.Conversation.FlowState.AwaitingInputFor = ""

	return transition{kind: follow}
}

func (x *execution) assign(key string, value any) {
	_, err := actions.Assign(x.run.Scenario, x.run.Conversation, key, value)
	if err != nil {
		x.logger.WarnContext(x.ctx, "answer not stored, keeping prior value", "key", key, "error", err)
		x.metrics.ConfigError("coercion")
	}
}

func (x *execution) mismatch(node *models.Node) transition {
	x.configError(&ConfigError{
		Kind:       KindContentMismatch,
		ScenarioID: x.run.Scenario.ID,
		NodeID:     node.ID,
		Reason:     "awaited node no longer expects input",
	})

	return transition{kind: terminate}
}

func skipped(content *models.FormContent, answer string) bool {
	if answer == "" {
		return true
	}

	keyword := content.SkipKeyword
	if keyword == "" {
		keyword = DefaultSkipKeyword
	}

	return textnorm.Equal(answer, keyword)
}

// parseField validates answer against the field type and pattern. Numbers are returned as float64.
func parseField(field models.FormField, answer string) (any, error) {
	if answer == "" {
		return nil, errEmptyAnswer
	}

	if field.Pattern != "" {
		re, err := regexp.Compile(field.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid field pattern: %w", err)
		}

		if !re.MatchString(answer) {
			return nil, fmt.Errorf("%q does not match %s", answer, field.Pattern)
		}
	}

	switch field.Type {
	case models.FieldTypeNumber:
		number, err := strconv.ParseFloat(strings.ReplaceAll(answer, " ", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", answer)
		}

		return number, nil
	case models.FieldTypeEmail:
		err := validate.Var(answer, "required,email")
		if err != nil {
			return nil, fmt.Errorf("%q is not an email address", answer)
		}
	case models.FieldTypePhone:
		err := validate.Var(phoneChars.Replace(answer), "required,min=8,max=16,e164|number")
		if err != nil {
			return nil, fmt.Errorf("%q is not a phone number", answer)
		}
	}

	return answer, nil
}
