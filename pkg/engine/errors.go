package engine

import (
	"errors"
	"fmt"
)

// Transition failures. Storage-level failures (not found, concurrent
// modification, validation) pass through from the record store
// untouched; these cover everything the engine itself rejects.
var (
	ErrNoWorkflowDefined  = errors.New("no workflow defined for record type")
	ErrTerminalState      = errors.New("record is in a terminal state")
	ErrUnknownAction      = errors.New("unknown action for current state")
	ErrUnauthorized       = errors.New("identity not permitted to execute transition")
	ErrConditionNotMet    = errors.New("transition condition not met")
	ErrInvariantViolation = errors.New("workflow invariant violated")
	ErrNotAmendable       = errors.New("only cancelled records can be amended")
)

// TransitionError wraps an engine rejection with the record and action
// it concerned.
type TransitionError struct {
	RecordType string
	RecordID   string
	Action     string
	Err        error
}

func (e *TransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("transition %q on %s/%s: %v", e.Action, e.RecordType, e.RecordID, e.Err)
	}

	return fmt.Sprintf("record %s/%s: %v", e.RecordType, e.RecordID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsConditionNotMet(err error) bool {
	return errors.Is(err, ErrConditionNotMet)
}

func IsTerminalState(err error) bool {
	return errors.Is(err, ErrTerminalState)
}
