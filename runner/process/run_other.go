//go:build !linux

package process

import (
	"context"
	"errors"

	"github.com/criyle/river/runner"
)

var errUnsupported = errors.New("process control is only supported on linux")

// Run is not supported on this platform
func (r *Runner) Run(ctx context.Context) (runner.Result, error) {
	return runner.Result{
		Status: runner.StatusRunnerError,
		Error:  errUnsupported.Error(),
	}, &Error{Op: OpPlatform, Err: errUnsupported}
}
