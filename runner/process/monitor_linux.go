package process

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/criyle/river/pkg/usage"
	"github.com/criyle/river/runner"
)

// si_code of waitid for a ptrace stop
const cldTrapped = 4

const ptraceOptions = unix.PTRACE_O_TRACEEXIT | unix.PTRACE_O_EXITKILL

// monitor watches one started child until it terminates
type monitor struct {
	limit        runner.Limit
	addressSpace runner.Size
	interval     time.Duration
	newSampler   func(context.Context, int) (usage.Sampler, error)
	logger       zerolog.Logger
}

// watch must run on the thread that started pid, which is its tracer.
// It resumes the child from its ptrace stops until it terminated while
// the wall clock timer, the memory sampler and ctx race to kill the
// process group. The group is killed and the child reaped on every path.
// start is the moment right before execve.
func (m *monitor) watch(ctx context.Context, pid int, start time.Time) (termination, error) {
	var peak usage.Peak

	sampler, err := m.newSampler(ctx, pid)
	if err != nil {
		m.logger.Debug().Err(err).Msg("memory sampler unavailable")
	}

	sctx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()
	memExceeded := make(chan struct{})
	samplerDone := make(chan struct{})
	if sampler == nil {
		close(samplerDone)
	} else {
		go func() {
			defer close(samplerDone)
			usage.Poll(sctx, sampler, m.interval, &peak, func(u usage.Usage) bool {
				if m.limit.MemoryLimit > 0 && u.Resident > m.limit.MemoryLimit {
					close(memExceeded)
					return true
				}
				return false
			})
		}()
	}

	var (
		killed       atomic.Int32
		exited       = make(chan struct{})
		enforcerDone = make(chan struct{})
	)
	go func() {
		defer close(enforcerDone)

		var timeout <-chan time.Time
		if m.limit.WallTime > 0 {
			timer := time.NewTimer(m.limit.WallTime - time.Since(start))
			defer timer.Stop()
			timeout = timer.C
		}

		var reason killReason
		select {
		case <-exited:
			return
		case <-timeout:
			reason = killWallTime
		case <-memExceeded:
			reason = killMemory
		case <-ctx.Done():
			reason = killCancel
		}
		killed.Store(int32(reason))
		m.logger.Info().Int("pid", pid).Stringer("reason", reason).Msg("killing process group")
		killGroup(pid)
	}()

	var (
		wstatus unix.WaitStatus
		rusage  unix.Rusage
	)
	reaped, traceErr := m.trace(ctx, pid, sampler, &peak, &wstatus, &rusage)
	end := time.Now()

	close(exited)
	<-enforcerDone
	stopSampler()
	<-samplerDone

	// the leader stays a zombie until wait4, so its pgid is not reused yet
	killGroup(pid)

	if traceErr != nil {
		m.logger.Warn().Err(traceErr).Int("pid", pid).Msg("waiting for the child failed")
	}
	if !reaped {
		if err := wait4(pid, &wstatus, 0, &rusage); err != nil {
			return termination{}, err
		}
	}

	t := termination{
		exited:       wstatus.Exited(),
		killed:       killReason(killed.Load()),
		wall:         end.Sub(start),
		cpu:          time.Duration(rusage.Utime.Nano() + rusage.Stime.Nano()),
		memory:       peak.Load(),
		addressSpace: m.addressSpace,
	}
	if t.exited {
		t.exitStatus = wstatus.ExitStatus()
	} else if wstatus.Signaled() {
		t.signal = wstatus.Signal()
	}
	m.logger.Debug().
		Int("pid", pid).
		Stringer("wstatus", waitStatus(wstatus)).
		Dur("wall", t.wall).
		Dur("cpu", t.cpu).
		Stringer("resident", t.memory.Resident).
		Stringer("virtual", t.memory.Virtual).
		Msg("process reaped")

	if t.killed == killCancel {
		return t, ctx.Err()
	}
	return t, nil
}

// trace resumes pid from every ptrace stop until it terminated, then
// leaves it as a zombie. Signals are delivered as they were sent, except
// the SIGTRAP raised by execve. At the exit stop the address space still
// exists, so the final sample holds the exact peak. reaped is true when
// the child died while a stop was being consumed.
func (m *monitor) trace(ctx context.Context, pid int, s usage.Sampler, peak *usage.Peak, wstatus *unix.WaitStatus, rusage *unix.Rusage) (reaped bool, err error) {
	var optionSet, execTrapped bool
	for {
		code, err := waitExited(pid)
		if err != nil {
			return false, err
		}
		if code != cldTrapped {
			return false, nil
		}
		if err := wait4(pid, wstatus, unix.WALL, rusage); err != nil {
			return false, err
		}
		if wstatus.Exited() || wstatus.Signaled() {
			return true, nil
		}
		if !wstatus.Stopped() {
			continue
		}

		if !optionSet {
			optionSet = true
			if err := unix.PtraceSetOptions(pid, ptraceOptions); err != nil {
				m.logger.Debug().Err(err).Int("pid", pid).Msg("set ptrace options failed")
			}
		}

		sig := wstatus.StopSignal()
		inject := 0
		switch {
		case sig == unix.SIGTRAP && wstatus.TrapCause() == unix.PTRACE_EVENT_EXIT:
			if s == nil {
				break
			}
			if u, err := s.Sample(ctx); err == nil {
				peak.Observe(u)
			} else {
				m.logger.Debug().Err(err).Int("pid", pid).Msg("sample at exit failed")
			}
		case sig == unix.SIGTRAP && !execTrapped:
			execTrapped = true
		default:
			inject = int(sig)
		}
		if err := unix.PtraceCont(pid, inject); err != nil {
			// killed while stopped, the exit is reported next
			m.logger.Debug().Err(err).Int("pid", pid).Msg("ptrace cont failed")
		}
	}
}

// waitExited blocks until pid terminated or entered a ptrace stop and
// returns the si_code. The child is left waitable.
func waitExited(pid int) (int32, error) {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return info.Code, err
		}
	}
}

func wait4(pid int, wstatus *unix.WaitStatus, options int, rusage *unix.Rusage) error {
	for {
		_, err := unix.Wait4(pid, wstatus, options, rusage)
		if err != unix.EINTR {
			return err
		}
	}
}

// killGroup kills every process in the group led by pid
func killGroup(pid int) {
	unix.Kill(-pid, unix.SIGKILL)
}

type waitStatus unix.WaitStatus

func (w waitStatus) String() string {
	ws := unix.WaitStatus(w)
	switch {
	case ws.Exited():
		return "exited(" + strconv.Itoa(ws.ExitStatus()) + ")"
	case ws.Signaled():
		return "signaled(" + ws.Signal().String() + ")"
	default:
		return "unknown(" + strconv.Itoa(int(w)) + ")"
	}
}
