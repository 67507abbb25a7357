// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrScenarioNotFound indicates a scenario was not found by the given identifier.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrVersionNotFound indicates no published version exists for the scenario.
	ErrVersionNotFound = errors.New("scenario version not found")

	// ErrVersionAlreadyExists indicates a concurrent publish took the same version number.
	ErrVersionAlreadyExists = errors.New("scenario version already exists")

	ErrConversationNotFound = errors.New("conversation not found")

	ErrMessageNotFound = errors.New("message not found")

	// ErrDuplicateMessage indicates the inbound mid was already stored for the conversation.
	ErrDuplicateMessage = errors.New("duplicate message")

	ErrCustomerNotFound = errors.New("customer not found")

	ErrPageNotFound = errors.New("page not found")

	ErrAIConfigNotFound = errors.New("ai config not found")
)

// ScenarioError wraps scenario-related errors with additional context.
type ScenarioError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	ScenarioID string
	Version    int // Published version if applicable
	Err        error
}

func (e *ScenarioError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s operation failed for scenario %s version %d: %v", e.Op, e.ScenarioID, e.Version, e.Err)
	}

	return fmt.Sprintf("%s operation failed for scenario %s: %v", e.Op, e.ScenarioID, e.Err)
}

func (e *ScenarioError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for scenario errors.
func (e *ScenarioError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewScenarioError creates a new scenario error with context.
func NewScenarioError(op, scenarioID string, err error) *ScenarioError {
	return &ScenarioError{
		Op:         op,
		ScenarioID: scenarioID,
		Err:        err,
	}
}

// NewVersionError creates a new scenario error for a published version.
func NewVersionError(op, scenarioID string, version int, err error) *ScenarioError {
	return &ScenarioError{
		Op:         op,
		ScenarioID: scenarioID,
		Version:    version,
		Err:        err,
	}
}

// ConversationError wraps conversation and message errors with the conversation they belong to.
type ConversationError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("%s operation failed for conversation %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *ConversationError) Unwrap() error {
	return e.Err
}

func (e *ConversationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewConversationError(op, conversationID string, err error) *ConversationError {
	return &ConversationError{
		Op:             op,
		ConversationID: conversationID,
		Err:            err,
	}
}

// IsScenarioNotFound checks if an error indicates a scenario was not found.
func IsScenarioNotFound(err error) bool {
	return errors.Is(err, ErrScenarioNotFound)
}

// IsVersionNotFound checks if an error indicates a published version was not found.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

func IsConversationNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound)
}

func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

// IsDuplicateMessage checks if an error indicates the inbound message was already stored.
func IsDuplicateMessage(err error) bool {
	return errors.Is(err, ErrDuplicateMessage)
}

func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsPageNotFound(err error) bool {
	return errors.Is(err, ErrPageNotFound)
}

func IsAIConfigNotFound(err error) bool {
	return errors.Is(err, ErrAIConfigNotFound)
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return IsScenarioNotFound(err) ||
		IsVersionNotFound(err) ||
		IsConversationNotFound(err) ||
		IsMessageNotFound(err) ||
		IsCustomerNotFound(err) ||
		IsPageNotFound(err) ||
		IsAIConfigNotFound(err)
}
