package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReference marks a reference to an id absent from the run's maps.
	ErrMissingReference = errors.New("missing reference")
	// ErrMalformedContent marks step or description content that cannot be parsed.
	ErrMalformedContent = errors.New("malformed content")
	// ErrNoBatches is returned by batch merge when there is nothing to merge.
	ErrNoBatches = errors.New("no batches to merge")
)

// MigratorError is the base error type with context.
type MigratorError struct {
	Phase   string // "config", "fetch", "attribute", "section", "sharedstep", "testcase", "content", "write", "read", "merge", "import"
	Entity  string
	Message string
	Cause   error
}

func (e *MigratorError) Error() string {
	s := fmt.Sprintf("[%s]", e.Phase)
	if e.Entity != "" {
		s += fmt.Sprintf(" %s", e.Entity)
	}
	s += fmt.Sprintf(": %s", e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	return s
}

func (e *MigratorError) Unwrap() error {
	return e.Cause
}

// NewError creates a new MigratorError.
func NewError(phase, entity, message string, cause error) *MigratorError {
	return &MigratorError{
		Phase:   phase,
		Entity:  entity,
		Message: message,
		Cause:   cause,
	}
}

// MissingReference builds an error for an unresolved id of the given kind.
func MissingReference(phase, kind string, id any) *MigratorError {
	return NewError(phase, fmt.Sprintf("%s %v", kind, id), "referenced id is not mapped", ErrMissingReference)
}

// MalformedContent builds an error for content that could not be parsed.
func MalformedContent(phase, entity string, cause error) *MigratorError {
	if cause == nil {
		cause = ErrMalformedContent
	} else {
		cause = fmt.Errorf("%w: %v", ErrMalformedContent, cause)
	}
	return NewError(phase, entity, "failed to parse content", cause)
}
