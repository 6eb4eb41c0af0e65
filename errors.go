package river

import (
	"errors"
	"fmt"

	"github.com/criyle/river/runner/process"
)

var (
	// ErrEmptyCommand is returned by New when the command line has no words
	ErrEmptyCommand = errors.New("river: empty command")
	// ErrInvalidLimit is returned by setters given a non-positive limit
	ErrInvalidLimit = errors.New("river: limit must be positive")
	// ErrAlreadyRun is returned when a River is run or modified after it ran
	ErrAlreadyRun = errors.New("river: already run")
)

// Operations reported by SetupError
const (
	OpLookup   = process.OpLookup
	OpFiles    = process.OpFiles
	OpStart    = process.OpStart
	OpPlatform = process.OpPlatform
	OpCancel   = process.OpCancel
)

// SetupError means the program was never run to completion, so there is
// no outcome. Op names the failed step.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("river: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func newSetupError(err error) *SetupError {
	var pe *process.Error
	if errors.As(err, &pe) {
		return &SetupError{Op: pe.Op, Err: pe.Err}
	}
	return &SetupError{Op: OpStart, Err: err}
}
