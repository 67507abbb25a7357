package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type VariableType string

const (
	VariableTypeString  VariableType = "string"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeJSON    VariableType = "json"
)

type VariableSource string

const (
	VariableSourceManual   VariableSource = "manual"
	VariableSourceCustomer VariableSource = "customer"
	VariableSourceSystem   VariableSource = "system"
	VariableSourceRuntime  VariableSource = "runtime"
)

var ErrCoercion = errors.New("value cannot be coerced")

// Variable declares a typed key of the conversation context.
type Variable struct {
	ScenarioID   string         `json:"scenario_id,omitempty"`
	Key          string         `json:"key"                    validate:"required"`
	Type         VariableType   `json:"type"                   validate:"required,oneof=string number boolean json"`
	DefaultValue any            `json:"default_value,omitempty"`
	Source       VariableSource `json:"source"                 validate:"omitempty,oneof=manual customer system runtime"`
}

// Coerce converts value to the variable type.
func (v *Variable) Coerce(value any) (any, error) {
	return Coerce(v.Type, value)
}

// Coerce converts value to the given variable type. Strings are parsed, numbers are float64.
func Coerce(kind VariableType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch kind {
	case VariableTypeString, "":
		switch typed := value.(type) {
		case string:
			return typed, nil
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64), nil
		case map[string]any, []any:
			data, err := json.Marshal(typed)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCoercion, err)
			}

			return string(data), nil
		default:
			return fmt.Sprint(typed), nil
		}
	case VariableTypeNumber:
		switch typed := value.(type) {
		case float64:
			return typed, nil
		case float32:
			return float64(typed), nil
		case int:
			return float64(typed), nil
		case int64:
			return float64(typed), nil
		case string:
			number, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrCoercion, typed)
			}

			return number, nil
		}
	case VariableTypeBoolean:
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(typed))
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a boolean", ErrCoercion, typed)
			}

			return b, nil
		case float64:
			return typed != 0, nil
		}
	case VariableTypeJSON:
		if typed, ok := value.(string); ok {
			var decoded any

			err := json.Unmarshal([]byte(typed), &decoded)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid json: %v", ErrCoercion, err)
			}

			return decoded, nil
		}

		return value, nil
	}

	return nil, fmt.Errorf("%w: %T to %s", ErrCoercion, value, kind)
}
