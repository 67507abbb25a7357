package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/pagebot/pkg/flow"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/textnorm"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// reservedVariables shadow conversation variables in link conditions.
var reservedVariables = []string{flow.EnvMessage, flow.EnvPayload}

// Validator checks that a scenario can be published.
type Validator struct {
	validate   *validator.Validate
	schemas    map[models.NodeType]*gojsonschema.Schema
	conditions *flow.Conditions
	cron       cron.Parser
}

func NewValidator() *Validator {
	schemas := make(map[models.NodeType]*gojsonschema.Schema, len(nodeSchemas))

	for nodeType, source := range nodeSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			panic(fmt.Sprintf("node schema %s: %v", nodeType, err))
		}

		schemas[nodeType] = schema
	}

	return &Validator{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		schemas:    schemas,
		conditions: flow.NewConditions(),
		cron:       cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ParseCron parses a time trigger value.
func (v *Validator) ParseCron(expression string) (cron.Schedule, error) {
	return v.cron.Parse(strings.TrimSpace(expression))
}

// validation accumulates the problems of one scenario.
type validation struct {
	*Validator

	scenario *models.Scenario
	nodes    map[string]*models.Node
	errs     ValidationErrors
}

func (x *validation) add(code string, err error, format string, args ...any) {
	x.errs = append(x.errs, NewValidationError("validateForPublishing", code, fmt.Sprintf(format, args...), err))
}

// Validate returns every reason the scenario cannot be published, as ValidationErrors, or nil.
func (v *Validator) Validate(scenario *models.Scenario) error {
	if scenario == nil {
		return ErrScenarioNil
	}

	x := &validation{Validator: v, scenario: scenario, nodes: make(map[string]*models.Node)}

	if strings.TrimSpace(scenario.Name) == "" {
		x.add("NAME_REQUIRED", ErrScenarioNameRequired, "scenario name is required")
	}

	if strings.TrimSpace(scenario.PageID) == "" {
		x.add("PAGE_REQUIRED", ErrPageRequired, "scenario page is required")
	}

	x.structure()
	x.nodeContents()
	x.links()
	x.triggers()
	x.subScripts()
	x.variables()

	if len(x.errs) == 0 {
		return nil
	}

	return x.errs
}

func (x *validation) structure() {
	err := x.validate.Struct(x.scenario)

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fieldError := range fieldErrors {
			x.add("INVALID_FIELD", ErrInvalidRequest, "%s fails %s", fieldError.Namespace(), fieldError.Tag())
		}
	}

	if len(x.scenario.Nodes) == 0 {
		x.add("NODES_REQUIRED", ErrNodesRequired, "scenario must have at least one node")
	}

	for _, node := range x.scenario.Nodes {
		if _, taken := x.nodes[node.ID]; taken {
			x.add("DUPLICATE_NODE", ErrDuplicateID, "node id %s is used twice", node.ID)
		}

		x.nodes[node.ID] = node
	}
}

func (x *validation) nodeContents() {
	for _, node := range x.scenario.Nodes {
		err := node.Validate()
		if err != nil {
			x.add("INVALID_NODE", ErrInvalidNodeContent, "%v", err)

			continue
		}

		x.nodeSchema(node)

		err = x.validate.Struct(node.Content)

		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fieldError := range fieldErrors {
				x.add("INVALID_NODE", ErrInvalidNodeContent, "node %s: %s fails %s", node.ID, fieldError.Field(), fieldError.Tag())
			}
		}

		switch content := node.Content.(type) {
		case *models.QuickReplyContent:
			for _, option := range content.Options {
				if option.NextNodeID != "" && x.nodes[option.NextNodeID] == nil {
					x.add("DANGLING_OPTION", ErrDanglingLink, "node %s: option %q points to missing node %s", node.ID, option.Title, option.NextNodeID)
				}
			}

			x.target(node.ID, content.SaveTo)
		case *models.FormContent:
			for _, field := range content.Fields {
				if field.Pattern == "" {
					continue
				}

				_, err := regexp.Compile(field.Pattern)
				if err != nil {
					x.add("INVALID_PATTERN", ErrInvalidPattern, "node %s field %s: %v", node.ID, field.Key, err)
				}
			}

			x.target(node.ID, content.SaveTo)
		case *models.ActionContent:
			for _, action := range content.Actions {
				x.action(node.ID, action)
			}
		case *models.ChildScriptContent:
			if content.ScenarioID == x.scenario.ID && content.NodeID != "" && x.nodes[content.NodeID] == nil {
				x.add("DANGLING_CHILD", ErrDanglingLink, "node %s: child node %s does not exist", node.ID, content.NodeID)
			}
		}
	}
}

func (x *validation) nodeSchema(node *models.Node) {
	schema, ok := x.schemas[node.Type]
	if !ok {
		x.add("UNKNOWN_NODE_TYPE", ErrInvalidNodeContent, "node %s: unknown type %s", node.ID, node.Type)

		return
	}

	raw, err := json.Marshal(node.Content)
	if err != nil {
		x.add("INVALID_NODE", ErrInvalidNodeContent, "node %s: %v", node.ID, err)

		return
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		x.add("INVALID_NODE", ErrInvalidNodeContent, "node %s: %v", node.ID, err)

		return
	}

	for _, desc := range result.Errors() {
		x.add("INVALID_NODE", ErrInvalidNodeContent, "node %s: %s", node.ID, desc.String())
	}
}

func (x *validation) action(nodeID string, action *models.Action) {
	err := x.validate.Struct(action)

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fieldError := range fieldErrors {
			x.add("INVALID_ACTION", ErrInvalidNodeContent, "node %s action %s: %s fails %s", nodeID, action.Type, fieldError.Field(), fieldError.Tag())
		}
	}

	switch action.Type {
	case models.ActionTypeSetVariable:
		x.target(nodeID, action.Key)
	case models.ActionTypeCallWebhook:
		x.target(nodeID, action.SaveTo)
	}
}

// target rejects writes to reserved names.
func (x *validation) target(nodeID, key string) {
	for _, reserved := range reservedVariables {
		if key == reserved {
			x.add("RESERVED_VARIABLE", ErrReservedVariable, "node %s writes reserved variable %q", nodeID, key)
		}
	}
}

func (x *validation) links() {
	for _, link := range x.scenario.Links {
		if x.nodes[link.FromNodeID] == nil || x.nodes[link.ToNodeID] == nil {
			x.add("DANGLING_LINK", ErrDanglingLink, "link %s: %s -> %s references a missing node", link.ID, link.FromNodeID, link.ToNodeID)
		}

		err := x.conditions.Check(link.Condition)
		if err != nil {
			x.add("INVALID_CONDITION", ErrInvalidCondition, "link %s: %v", link.ID, err)
		}
	}
}

func (x *validation) triggers() {
	entry := x.scenario.EntryNode()

	for _, trigger := range x.scenario.Triggers {
		switch {
		case trigger.EntryNodeID != "" && x.nodes[trigger.EntryNodeID] == nil:
			x.add("ENTRY_MISSING", ErrEntryNodeRequired, "trigger %s: entry node %s does not exist", trigger.ID, trigger.EntryNodeID)
		case trigger.EntryNodeID == "" && entry == nil:
			x.add("ENTRY_MISSING", ErrEntryNodeRequired, "trigger %s: scenario has no entry node", trigger.ID)
		}

		switch trigger.Type {
		case models.TriggerTypeKeyword:
			if trigger.MatchMode == models.MatchModeRegex {
				x.pattern("trigger "+trigger.ID, trigger.Value)
			}
		case models.TriggerTypeTime:
			_, err := x.ParseCron(trigger.Value)
			if err != nil {
				x.add("INVALID_CRON", ErrInvalidTrigger, "trigger %s: %v", trigger.ID, err)
			}
		}
	}
}

func (x *validation) subScripts() {
	for _, sub := range x.scenario.SubScripts {
		if sub.ConfidenceThreshold < 0 || sub.ConfidenceThreshold > 1 {
			x.add("INVALID_THRESHOLD", ErrInvalidSubScript, "sub-script %s: confidence threshold %v is outside [0,1]", sub.ID, sub.ConfidenceThreshold)
		}

		if sub.Priority < 0 {
			x.add("INVALID_PRIORITY", ErrInvalidSubScript, "sub-script %s: priority must not be negative", sub.ID)
		}

		if sub.MatchMode == models.MatchModeRegex {
			for _, keyword := range sub.TriggerKeywords {
				x.pattern("sub-script "+sub.ID, keyword)
			}
		}

		if sub.Action != nil {
			x.action("sub-script "+sub.ID, sub.Action)
		}
	}
}

func (x *validation) pattern(owner, pattern string) {
	_, err := regexp.Compile(textnorm.Pattern(pattern))
	if err != nil {
		x.add("INVALID_PATTERN", ErrInvalidPattern, "%s: %v", owner, err)
	}
}

func (x *validation) variables() {
	seen := make(map[string]bool, len(x.scenario.Variables))

	for _, variable := range x.scenario.Variables {
		for _, reserved := range reservedVariables {
			if variable.Key == reserved {
				x.add("RESERVED_VARIABLE", ErrReservedVariable, "variable %q is reserved", variable.Key)
			}
		}

		if seen[variable.Key] {
			x.add("DUPLICATE_VARIABLE", ErrDuplicateID, "variable %q is declared twice", variable.Key)
		}

		seen[variable.Key] = true

		if variable.DefaultValue != nil {
			_, err := variable.Coerce(variable.DefaultValue)
			if err != nil {
				x.add("INVALID_DEFAULT", ErrInvalidRequest, "variable %q: %v", variable.Key, err)
			}
		}
	}
}
