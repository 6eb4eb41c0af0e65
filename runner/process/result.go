package process

import (
	"syscall"
	"time"

	"github.com/criyle/river/pkg/usage"
	"github.com/criyle/river/runner"
)

// killReason records why the monitor killed the process group
type killReason int

const (
	killNone killReason = iota
	killWallTime
	killMemory
	killCancel
)

var killReasonString = []string{
	"none",
	"wall_time",
	"memory",
	"cancel",
}

func (k killReason) String() string {
	if k >= killNone && k <= killCancel {
		return killReasonString[k]
	}
	return "unknown"
}

// termination is what is known about the child once it was reaped
type termination struct {
	exited     bool
	exitStatus int
	signal     syscall.Signal

	killed killReason

	wall time.Duration
	cpu  time.Duration

	// peak of the samples, the one taken at the exit stop included.
	// Zero when no sample succeeded.
	memory usage.Usage

	// RLIMIT_AS installed in the child, 0 for none
	addressSpace runner.Size
}

// clean reports whether the program exited on its own with status 0
func (t termination) clean() bool {
	return t.exited && t.exitStatus == 0
}

// denied reports whether the program likely failed on an allocation
// refused by RLIMIT_AS: it grew its address space past the memory limit
// and did not finish cleanly
func (t termination) denied(l runner.Limit) bool {
	return t.addressSpace > 0 && !t.clean() && t.memory.Virtual > l.MemoryLimit
}

// classify turns a termination into a result, first match wins:
// monitor kills, peak over the memory limit, a denied allocation,
// cpu time limit, then the exit status or signal of the program itself
func classify(t termination, l runner.Limit) runner.Result {
	r := runner.Result{
		Time:    t.wall,
		CPUTime: t.cpu,
		Memory:  t.memory.Resident,
	}
	if t.exited {
		r.ExitStatus = t.exitStatus
	} else {
		r.Signal = t.signal
	}

	// a kill sent after the program exited on its own has no effect
	killed := !t.exited && t.killed != killNone
	cpu := cpuLimit(l)

	switch {
	case killed && t.killed == killWallTime:
		r.Status = runner.StatusTimeLimitExceeded
	case killed && t.killed == killMemory:
		r.Status = runner.StatusMemoryLimitExceeded
	case l.MemoryLimit > 0 && t.memory.Resident > l.MemoryLimit:
		r.Status = runner.StatusMemoryLimitExceeded
	case l.MemoryLimit > 0 && t.denied(l):
		r.Status = runner.StatusMemoryLimitExceeded
	case !t.exited && t.signal == syscall.SIGXCPU:
		r.Status = runner.StatusTimeLimitExceeded
	case cpu > 0 && t.cpu >= cpu:
		r.Status = runner.StatusTimeLimitExceeded
	case t.exited:
		r.Status = runner.StatusExited
	default:
		r.Status = runner.StatusSignalled
	}
	return r
}
