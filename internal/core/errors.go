// services/fleet/internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Business errors.
var (
	// Robot errors.
	ErrUnknownRobot      = errors.New("robot not found")
	ErrInvalidTransition = errors.New("invalid robot state transition")

	// Persistence errors.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Retention errors.
	ErrRangeNotArchived = errors.New("date range has no successful archive")
)

// StageError reports the failure of one process-flow stage. The cycle
// driver converts it into robot status = error with the stage name in
// the detail.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage it occurred in.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
