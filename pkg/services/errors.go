// Package services implements the scenario editor: draft CRUD, publishing, versions and restore.
package services

import (
	"errors"
	"fmt"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrScenarioNil          = errors.New("scenario cannot be nil")
	ErrScenarioNameRequired = errors.New("scenario name is required")
	ErrPageRequired         = errors.New("scenario page is required")
	ErrNodesRequired        = errors.New("scenario must have at least one node")
	ErrEntryNodeRequired    = errors.New("trigger has no entry node")
	ErrDanglingLink         = errors.New("link references a missing node")
	ErrInvalidPattern       = errors.New("invalid regex pattern")
	ErrInvalidCondition     = errors.New("invalid link condition")
	ErrInvalidNodeContent   = errors.New("invalid node content")
	ErrInvalidTrigger       = errors.New("invalid trigger")
	ErrInvalidSubScript     = errors.New("invalid sub-script")
	ErrReservedVariable     = errors.New("variable name is reserved")
	ErrDuplicateID          = errors.New("duplicate id")
)

// Conflict errors (409 Conflict).
var (
	ErrVersionConflict  = errors.New("version was published concurrently")
	ErrPageMismatch     = errors.New("scenario belongs to another page")
	ErrConversationOpen = errors.New("conversation is not waiting for an agent")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string `json:"op"`      // Operation name
	Code    string `json:"code"`    // Error code for API responses
	Message string `json:"message"` // Human-readable message
	Err     error  `json:"-"`       // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ValidationErrors collects every problem found while validating a scenario.
type ValidationErrors []*ServiceError

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}

	return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		errs = append(errs, e)
	}

	return errs
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrScenarioNil,
		ErrScenarioNameRequired,
		ErrPageRequired,
		ErrNodesRequired,
		ErrEntryNodeRequired,
		ErrDanglingLink,
		ErrInvalidPattern,
		ErrInvalidCondition,
		ErrInvalidNodeContent,
		ErrInvalidTrigger,
		ErrInvalidSubScript,
		ErrReservedVariable,
		ErrDuplicateID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrPageMismatch) ||
		errors.Is(err, ErrConversationOpen)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
