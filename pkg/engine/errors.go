package engine

import (
	"errors"
	"fmt"
)

// Client errors: the request is rejected and nothing is written.
var (
	ErrDefinitionNotFound       = errors.New("workflow definition not found")
	ErrInvalidTrigger           = errors.New("invalid trigger")
	ErrExecutionNotFound        = errors.New("execution not found")
	ErrNotSuspended             = errors.New("execution is not suspended")
	ErrConcurrentResumeConflict = errors.New("execution was resumed concurrently")
	ErrInvalidResumePayload     = errors.New("invalid resume payload")
	ErrNotCancellable           = errors.New("execution is already finished")
)

// Run failures: recorded on the execution, which ends Failed.
var (
	ErrHandlerFailure      = errors.New("node handler failed")
	ErrHandlerTimeout      = errors.New("node handler timed out")
	ErrAmbiguousTransition = errors.New("ambiguous transition")
	ErrInvalidDefinition   = errors.New("invalid workflow definition")
	ErrStepLimitExceeded   = errors.New("step limit exceeded")
)

// ErrConcurrentModification is returned when a write lost to another writer
// that did not cancel the execution.
var ErrConcurrentModification = errors.New("execution was modified concurrently")

// ExecutionError reports why a run halted Failed. The record returned next
// to it is already persisted in that state.
type ExecutionError struct {
	Op          string
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: execution %s failed: %v", e.Op, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s: execution %s failed at node %s: %v", e.Op, e.ExecutionID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRunFailure reports whether err describes a run that halted Failed, as
// opposed to a rejected request.
func IsRunFailure(err error) bool {
	var execErr *ExecutionError

	return errors.As(err, &execErr)
}

// IsClientError reports whether err is a rejected request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrNotSuspended) ||
		errors.Is(err, ErrConcurrentResumeConflict) ||
		errors.Is(err, ErrInvalidResumePayload) ||
		errors.Is(err, ErrNotCancellable)
}
