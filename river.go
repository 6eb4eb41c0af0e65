package river

import (
	"context"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/criyle/river/pkg/metrics"
	"github.com/criyle/river/runner"
	"github.com/criyle/river/runner/process"
)

const tracerName = "github.com/criyle/river"

// largest limits representable as time.Duration and byte counts
const (
	maxMS = math.MaxInt64 / int64(time.Millisecond)
	maxKB = math.MaxInt64 >> 10
)

// ErrInvalidFd is returned by the fd setters given a negative descriptor
var ErrInvalidFd = errors.New("river: invalid file descriptor")

// River is a command to run once under optional limits.
// A zero limit or an unset fd means none is configured.
// It is safe to call its methods from multiple goroutines.
type River struct {
	mu sync.Mutex

	args []string

	timeLimit    int64 // ms
	cpuTimeLimit int64 // ms
	memoryLimit  int64 // KB

	inFd, outFd, errFd int // -1 when unset

	env     []string
	workDir string
	config  *process.Config

	logger   zerolog.Logger
	recorder metrics.Recorder

	ran bool
}

// New parses cmdline into an argument vector. Words are separated by
// whitespace; quotes and backslashes group them the way a shell does,
// but no operators, pipes or expansions are interpreted.
func New(cmdline string) (*River, error) {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return &River{
		args:     args,
		inFd:     -1,
		outFd:    -1,
		errFd:    -1,
		logger:   zerolog.Nop(),
		recorder: metrics.NoopRecorder{},
	}, nil
}

// set runs fn under the lock unless the river already ran
func (r *River) set(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran {
		return ErrAlreadyRun
	}
	fn()
	return nil
}

// setLimit rejects values above max, which would overflow once converted
func (r *River) setLimit(v, max int64, dst *int64) error {
	if v <= 0 || v > max {
		return ErrInvalidLimit
	}
	return r.set(func() { *dst = v })
}

func (r *River) setFd(fd int, dst *int) error {
	if fd < 0 {
		return ErrInvalidFd
	}
	return r.set(func() { *dst = fd })
}

// SetTimeLimit sets the wall clock limit in ms. Unless a CPU time limit is
// set, it also bounds the CPU time.
func (r *River) SetTimeLimit(ms int64) error { return r.setLimit(ms, maxMS, &r.timeLimit) }

// SetCPUTimeLimit sets the CPU time limit in ms
func (r *River) SetCPUTimeLimit(ms int64) error { return r.setLimit(ms, maxMS, &r.cpuTimeLimit) }

// SetMemoryLimit sets the peak memory limit in KB
func (r *River) SetMemoryLimit(kb int64) error { return r.setLimit(kb, maxKB, &r.memoryLimit) }

// SetInFd sets the descriptor used as stdin of the program
func (r *River) SetInFd(fd int) error { return r.setFd(fd, &r.inFd) }

// SetOutFd sets the descriptor used as stdout of the program
func (r *River) SetOutFd(fd int) error { return r.setFd(fd, &r.outFd) }

// SetErrFd sets the descriptor used as stderr of the program
func (r *River) SetErrFd(fd int) error { return r.setFd(fd, &r.errFd) }

// SetEnv replaces the environment of the program, the parent's is used by default
func (r *River) SetEnv(env []string) error {
	env = append([]string{}, env...)
	return r.set(func() { r.env = env })
}

// SetWorkDir sets the working directory of the program
func (r *River) SetWorkDir(dir string) error {
	return r.set(func() { r.workDir = dir })
}

// SetConfig overrides process.DefaultConfig()
func (r *River) SetConfig(c process.Config) error {
	return r.set(func() { r.config = &c })
}

// SetLogger sets the logger for debug output, nothing is logged by default
func (r *River) SetLogger(l zerolog.Logger) error {
	return r.set(func() { r.logger = l })
}

// SetRecorder sets where run metrics are recorded
func (r *River) SetRecorder(m metrics.Recorder) error {
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	return r.set(func() { r.recorder = m })
}

// Args returns a copy of the argument vector
func (r *River) Args() []string {
	return append([]string{}, r.args...)
}

// TimeLimit returns the wall clock limit in ms
func (r *River) TimeLimit() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeLimit, r.timeLimit > 0
}

// CPUTimeLimit returns the CPU time limit in ms
func (r *River) CPUTimeLimit() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cpuTimeLimit, r.cpuTimeLimit > 0
}

// MemoryLimit returns the memory limit in KB
func (r *River) MemoryLimit() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memoryLimit, r.memoryLimit > 0
}

// InFd returns the stdin descriptor
func (r *River) InFd() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFd, r.inFd >= 0
}

// OutFd returns the stdout descriptor
func (r *River) OutFd() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outFd, r.outFd >= 0
}

// ErrFd returns the stderr descriptor
func (r *River) ErrFd() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errFd, r.errFd >= 0
}

// Env returns the environment set by SetEnv, nil for the parent's
func (r *River) Env() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.env == nil {
		return nil
	}
	return append([]string{}, r.env...)
}

// WorkDir returns the working directory, empty for the parent's
func (r *River) WorkDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workDir
}

// Ran reports whether Run was called
func (r *River) Ran() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ran
}

func (r *River) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString("command:      ")
	b.WriteString(strings.Join(r.args, " "))
	if r.timeLimit > 0 {
		b.WriteString("\ntime limit:   ")
		b.WriteString(strconv.FormatInt(r.timeLimit, 10))
	}
	if r.memoryLimit > 0 {
		b.WriteString("\nmemory limit: ")
		b.WriteString(strconv.FormatInt(r.memoryLimit, 10))
	}
	return b.String()
}

func (r *River) limit() runner.Limit {
	return runner.Limit{
		WallTime:    time.Duration(r.timeLimit) * time.Millisecond,
		CPUTime:     time.Duration(r.cpuTimeLimit) * time.Millisecond,
		MemoryLimit: runner.Size(r.memoryLimit) << 10,
	}
}

// prepare marks the river as run and snapshots it into a process runner
func (r *River) prepare() (*process.Runner, zerolog.Logger, metrics.Recorder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran {
		return nil, r.logger, r.recorder, ErrAlreadyRun
	}
	r.ran = true

	env := r.env
	if env == nil {
		env = os.Environ()
	}
	return &process.Runner{
		Args:    append([]string{}, r.args...),
		Env:     env,
		WorkDir: r.workDir,
		Files:   []int{r.inFd, r.outFd, r.errFd},
		Limit:   r.limit(),
		Config:  r.config,
	}, r.logger, r.recorder, nil
}

// Run runs the command and blocks until it terminated
func (r *River) Run() (*RunOutcome, error) {
	return r.RunContext(context.Background())
}

// RunContext is Run with a context. Canceling ctx kills the program and
// returns a SetupError with OpCancel.
func (r *River) RunContext(ctx context.Context) (*RunOutcome, error) {
	pr, logger, recorder, err := r.prepare()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()
	pr.Logger = logger

	ctx, span := otel.Tracer(tracerName).Start(ctx, "river.run",
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrCommand.String(strings.Join(pr.Args, " ")),
			AttrTimeLimitMS.Int64(pr.Limit.WallTime.Milliseconds()),
			AttrMemoryLimitKB.Int64(int64(pr.Limit.MemoryLimit.KiB())),
		),
	)
	defer span.End()

	logger.Debug().Strs("args", pr.Args).Stringer("limit", pr.Limit).Msg("run")
	result, err := pr.Run(ctx)
	if err != nil {
		se := newSetupError(err)
		recorder.ObserveSetupFailure(se.Op)
		span.RecordError(se)
		span.SetStatus(codes.Error, se.Error())
		logger.Warn().Err(se).Str("op", se.Op).Msg("run failed")
		return nil, se
	}

	o := newOutcome(result)
	recorder.ObserveRun(o.Kind().String(), result.Time, o.MemoryUsed())
	attrs := []attribute.KeyValue{
		AttrKind.String(o.Kind().String()),
		AttrTimeUsedMS.Int64(o.TimeUsed()),
		AttrMemoryUsedKB.Int64(o.MemoryUsed()),
	}
	if code, ok := o.ExitCode(); ok {
		attrs = append(attrs, AttrExitCode.Int(code))
	}
	span.SetAttributes(attrs...)
	logger.Info().
		Stringer("kind", o.Kind()).
		Int64("time_ms", o.TimeUsed()).
		Int64("memory_kb", o.MemoryUsed()).
		Msg("run finished")
	return o, nil
}
