package process

import (
	"context"
	"runtime"
	"time"

	"github.com/criyle/river/pkg/forkexec"
	"github.com/criyle/river/pkg/seccomp"
	"github.com/criyle/river/runner"
)

// Run starts the program and blocks until it terminated. A non-nil error
// means no program result is available: the program could not be started
// or ctx was canceled while it was running.
func (r *Runner) Run(ctx context.Context) (runner.Result, error) {
	var (
		cfg    = r.config()
		logger = r.Logger
		sTime  = time.Now() // start of setup
		fTime  time.Time    // right before execve
	)

	if err := ctx.Err(); err != nil {
		return runnerError(OpCancel, err)
	}
	if len(r.Args) == 0 {
		return runnerError(OpLookup, errEmptyArgs)
	}
	path, err := lookPath(r.Args[0], r.WorkDir)
	if err != nil {
		return runnerError(OpLookup, err)
	}

	fds, opened, err := prepareFiles(r.Files)
	if err != nil {
		return runnerError(OpFiles, err)
	}
	defer closeFiles(opened)

	filter, err := seccomp.Deny(cfg.DeniedSyscalls)
	if err != nil {
		return runnerError(OpStart, err)
	}

	rl := cfg.RLimits(r.Limit)
	ch := &forkexec.Runner{
		Args:    append([]string{path}, r.Args[1:]...),
		Env:     r.Env,
		RLimits: rl.PrepareRLimit(),
		Files:   fds,
		WorkDir: r.WorkDir,
		Ptrace:  !cfg.SkipExitStop,
		SyncFunc: func(int) error {
			fTime = time.Now()
			return nil
		},
	}
	if len(filter) > 0 {
		ch.Seccomp = filter.SockFprog()
	}

	// the forking thread is the tracer until the child is reaped
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := ch.Start()
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("failed to start")
		return runnerError(OpStart, err)
	}
	logger.Debug().Int("pid", pid).Str("path", path).Stringer("rlimits", rl).Stringer("limit", r.Limit).Msg("process started")

	m := &monitor{
		limit:        r.Limit,
		addressSpace: runner.Size(rl.AddressSpace),
		interval:     cfg.SampleInterval,
		newSampler:   r.newSampler(),
		logger:       logger,
	}
	t, err := m.watch(ctx, pid, fTime)
	if err != nil {
		op := OpStart
		if ctx.Err() != nil {
			op = OpCancel
		}
		return runnerError(op, err)
	}

	result := classify(t, r.Limit)
	result.SetUpTime = fTime.Sub(sTime)
	result.RunningTime = time.Since(fTime)
	return result, nil
}

func runnerError(op string, err error) (runner.Result, error) {
	return runner.Result{
		Status: runner.StatusRunnerError,
		Error:  err.Error(),
	}, &Error{Op: op, Err: err}
}
