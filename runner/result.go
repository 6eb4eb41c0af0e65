package runner

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

// Result is the program runner result
type Result struct {
	Status                    // result status
	ExitStatus int            // exit status, meaningful when the process exited
	Signal     syscall.Signal // terminating signal, 0 if the process exited
	Error      string         // potential detailed error message (for program runner error)

	Time    time.Duration // used real clock time (monotonic, from execve to termination)
	CPUTime time.Duration // used user + system CPU time
	Memory  Size          // peak resident memory (underlying type uint64 in bytes)

	// metrics for the program runner
	SetUpTime   time.Duration
	RunningTime time.Duration
}

// Exited reports whether the process terminated by calling exit
func (r Result) Exited() bool {
	return r.Signal == 0 && r.Status != StatusRunnerError && r.Status != StatusInvalid
}

func (r Result) String() string {
	switch r.Status {
	case StatusExited:
		return fmt.Sprintf("Result[Exited(%d)][%v %v %v][%v %v]", r.ExitStatus, r.Time, r.CPUTime, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][%v %v %v][%v %v]", r.Signal, r.Time, r.CPUTime, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%v %v %v][%v %v]", r.Error, r.Time, r.CPUTime, r.Memory, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%d %d)][%v %v %v][%v %v]", r.Status, r.ExitStatus, r.Signal, r.Time, r.CPUTime, r.Memory, r.SetUpTime, r.RunningTime)
	}
}

// Runner interface defines method to start running
type Runner interface {
	// Run blocks until the program terminated. Errors are returned only
	// when the program could not be started (setup failure) or ctx is
	// canceled, otherwise the termination is described by Result
	Run(context.Context) (Result, error)
}
