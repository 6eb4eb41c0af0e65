package river

import (
	"fmt"
	"syscall"
	"time"

	"github.com/criyle/river/runner"
)

// OutcomeKind tells how the program terminated
type OutcomeKind int

// Outcome kinds
const (
	Exited OutcomeKind = iota
	Signaled
	TimeLimitExceeded
	MemoryLimitExceeded
)

var outcomeKindString = []string{
	"exited",
	"signaled",
	"time_limit_exceeded",
	"memory_limit_exceeded",
}

func (k OutcomeKind) String() string {
	if k >= Exited && k <= MemoryLimitExceeded {
		return outcomeKindString[k]
	}
	return "unknown"
}

// RunOutcome is the immutable result of a finished run.
// Time is in milliseconds and memory in kilobytes.
type RunOutcome struct {
	kind       OutcomeKind
	timeUsed   int64
	cpuUsed    int64
	memoryUsed int64

	exitCode int
	hasExit  bool
	signal   syscall.Signal
}

func newOutcome(r runner.Result) *RunOutcome {
	o := &RunOutcome{
		timeUsed:   milliseconds(r.Time),
		cpuUsed:    milliseconds(r.CPUTime),
		memoryUsed: kilobytes(r.Memory),
	}
	if r.Signal != 0 {
		o.signal = r.Signal
	} else {
		o.exitCode = r.ExitStatus
		o.hasExit = true
	}
	switch r.Status {
	case runner.StatusTimeLimitExceeded:
		o.kind = TimeLimitExceeded
	case runner.StatusMemoryLimitExceeded:
		o.kind = MemoryLimitExceeded
	case runner.StatusSignalled:
		o.kind = Signaled
	default:
		o.kind = Exited
	}
	return o
}

func milliseconds(d time.Duration) int64 {
	return int64(d / time.Millisecond)
}

// kilobytes rounds up so any resident page counts
func kilobytes(s runner.Size) int64 {
	return int64((s.Byte() + 1023) >> 10)
}

// TimeUsed is the wall clock time in ms from execve to termination
func (o *RunOutcome) TimeUsed() int64 { return o.timeUsed }

// CPUTimeUsed is the user and system CPU time in ms
func (o *RunOutcome) CPUTimeUsed() int64 { return o.cpuUsed }

// MemoryUsed is the peak resident memory in KB
func (o *RunOutcome) MemoryUsed() int64 { return o.memoryUsed }

// ExitCode returns the exit status when the program was not signaled
func (o *RunOutcome) ExitCode() (int, bool) {
	return o.exitCode, o.hasExit
}

// Signal returns the terminating signal, including a kill by the monitor
func (o *RunOutcome) Signal() (syscall.Signal, bool) {
	return o.signal, !o.hasExit
}

// Kind tells how the program terminated
func (o *RunOutcome) Kind() OutcomeKind { return o.kind }

// LimitExceeded reports whether a time or memory limit ended the run
func (o *RunOutcome) LimitExceeded() bool {
	return o.kind == TimeLimitExceeded || o.kind == MemoryLimitExceeded
}

func (o *RunOutcome) String() string {
	if o.hasExit {
		return fmt.Sprintf("%v(exit=%d) time=%dms cpu=%dms memory=%dKB", o.kind, o.exitCode, o.timeUsed, o.cpuUsed, o.memoryUsed)
	}
	return fmt.Sprintf("%v(signal=%v) time=%dms cpu=%dms memory=%dKB", o.kind, o.signal, o.timeUsed, o.cpuUsed, o.memoryUsed)
}

type outcomeView struct {
	Kind        string `yaml:"kind"`
	TimeUsed    int64  `yaml:"time_used"`
	CPUTimeUsed int64  `yaml:"cpu_time_used"`
	MemoryUsed  int64  `yaml:"memory_used"`
	ExitCode    *int   `yaml:"exit_code,omitempty"`
	Signal      *int   `yaml:"signal,omitempty"`
}

// MarshalYAML renders the outcome with exit_code or signal, never both
func (o *RunOutcome) MarshalYAML() (interface{}, error) {
	v := outcomeView{
		Kind:        o.kind.String(),
		TimeUsed:    o.timeUsed,
		CPUTimeUsed: o.cpuUsed,
		MemoryUsed:  o.memoryUsed,
	}
	if o.hasExit {
		code := o.exitCode
		v.ExitCode = &code
	} else {
		sig := int(o.signal)
		v.Signal = &sig
	}
	return v, nil
}
