package engine

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks a failure to read or write conversation state. The inbound message
// was not fully processed and may be redelivered.
var ErrStorageUnavailable = errors.New("storage unavailable")

var (
	ErrScenarioNotPublished = errors.New("scenario has no published version")
	ErrEmptyMessage         = errors.New("inbound message has no text or payload")
)

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func isNotPublished(err error) bool {
	return errors.Is(err, ErrScenarioNotPublished)
}
