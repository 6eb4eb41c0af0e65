//go:build !linux

package forkexec

import (
	"fmt"
	"runtime"
)

// Start is only supported on linux
func (r *Runner) Start() (int, error) {
	return 0, fmt.Errorf("forkexec: unsupported on platform %s", runtime.GOOS)
}
