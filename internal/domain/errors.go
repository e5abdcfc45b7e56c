package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("feature flag not found")
	ErrAlreadyExists = errors.New("feature flag already exists")
	ErrWrongKind     = errors.New("feature flag has the wrong kind")
	ErrDisabled      = errors.New("feature flag is disabled")
)

// ValidationError carries every field-level violation found on a record, so
// callers can report all of them at once.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid feature flag: " + strings.Join(e.Messages, "; ")
}
