package flow

import (
	"errors"
	"fmt"
)

// Configuration error kinds.
const (
	KindMissingEntry    = "missing_entry"
	KindMissingNode     = "missing_node"
	KindDanglingLink    = "dangling_link"
	KindMaxHops         = "max_hops"
	KindChildScript     = "child_script"
	KindBadCondition    = "bad_condition"
	KindContentMismatch = "content_mismatch"
)

// ConfigError is a scenario misconfiguration met while executing a flow.
type ConfigError struct {
	Kind       string
	ScenarioID string
	NodeID     string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scenario %s node %s: %s: %s", e.ScenarioID, e.NodeID, e.Kind, e.Reason)
}

func IsConfigError(err error) bool {
	var configErr *ConfigError

	return errors.As(err, &configErr)
}
