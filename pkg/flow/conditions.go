package flow

import (
	"fmt"
	"maps"
	"sync"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Reserved condition variables. They shadow conversation variables of the same name.
const (
	EnvMessage = "message"
	EnvPayload = "payload"
)

// Conditions compiles link conditions once and evaluates them against variable bindings.
type Conditions struct {
	programs sync.Map
}

func NewConditions() *Conditions {
	return &Conditions{}
}

// Evaluate reports whether condition holds. An empty condition always holds. Unknown variables
// evaluate to nil.
func (c *Conditions) Evaluate(condition string, env map[string]any) (bool, error) {
	if condition == "" {
		return true, nil
	}

	program, err := c.compile(condition)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}

	passed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, not bool", condition, out)
	}

	return passed, nil
}

// Check reports whether condition compiles.
func (c *Conditions) Check(condition string) error {
	if condition == "" {
		return nil
	}

	_, err := c.compile(condition)

	return err
}

func (c *Conditions) compile(condition string) (*vm.Program, error) {
	if cached, ok := c.programs.Load(condition); ok {
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(condition, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", condition, err)
	}

	c.programs.Store(condition, program)

	return program, nil
}

// Env builds the evaluation environment for a conversation.
func Env(bindings map[string]any, message *models.InboundMessage) map[string]any {
	env := make(map[string]any, len(bindings)+2)
	maps.Copy(env, bindings)

	env[EnvMessage] = ""
	env[EnvPayload] = ""

	if message != nil {
		env[EnvMessage] = message.Text
		env[EnvPayload] = message.Payload
	}

	return env
}
