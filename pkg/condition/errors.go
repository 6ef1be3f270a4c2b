package condition

import (
	"errors"
	"fmt"
)

// Evaluation failure classes. The engine treats every one of them as
// "transition not available" — conditions fail closed, never open.
var (
	ErrParse   = errors.New("condition parse failure")
	ErrType    = errors.New("condition type mismatch")
	ErrTimeout = errors.New("condition evaluation timed out")
)

// EvalError wraps an evaluation failure with the offending expression.
type EvalError struct {
	Expression string
	Err        error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expression, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

func (e *EvalError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
