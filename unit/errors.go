package unit

import (
	"fmt"

	"github.com/teranos/shelf/errors"
)

// ExecutionError reports a failed Execute. Partial holds whatever output the
// unit produced before failing (nil when there was none); it is never dropped
// by the Registry.
type ExecutionError struct {
	Unit    string
	Cause   error
	Partial any
}

// NewExecutionError builds an ExecutionError for cause. The unit name is
// filled in by the Registry when left empty.
func NewExecutionError(cause error, partial any) *ExecutionError {
	return &ExecutionError{Cause: cause, Partial: partial}
}

func (e *ExecutionError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("execution failed: %v", e.Cause)
	}
	return fmt.Sprintf("unit %s: execution failed: %v", e.Unit, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Is makes every ExecutionError match errors.ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == errors.ErrExecution
}

// AsExecutionError extracts the ExecutionError from err's chain.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// PartialOf returns the partial output attached to err, if any.
func PartialOf(err error) any {
	if ee, ok := AsExecutionError(err); ok {
		return ee.Partial
	}
	return nil
}
