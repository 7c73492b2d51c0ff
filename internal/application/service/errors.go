package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError via errors.Is
	ErrNotFound = errors.New("not found")

	// ErrInvalidState matches any *InvalidStateError via errors.Is
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError reports rejected input. Fields maps a field name to the
// reason it was rejected.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing resource
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports an operation the match's current status does not allow
type InvalidStateError struct {
	MatchID string
	Status  string
	Action  string
	Reason  string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("cannot %s match %s in status %s", e.Action, e.MatchID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

func newValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}
