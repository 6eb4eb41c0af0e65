package river

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gopkg.in/yaml.v3"

	"github.com/criyle/river/pkg/metrics"
	"github.com/criyle/river/pkg/pipe"
	"github.com/criyle/river/runner/process"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cmdline string
		want    []string
		err     error
	}{
		{name: "words", cmdline: "echo Hello World!", want: []string{"echo", "Hello", "World!"}},
		{name: "extra whitespace", cmdline: "  sleep \t 3  ", want: []string{"sleep", "3"}},
		{name: "quotes", cmdline: `sh -c 'exit 3'`, want: []string{"sh", "-c", "exit 3"}},
		{name: "no operators", cmdline: "echo a | wc", want: []string{"echo", "a", "|", "wc"}},
		{name: "empty", cmdline: "", err: ErrEmptyCommand},
		{name: "blank", cmdline: "   ", err: ErrEmptyCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cmdline)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Args())
		})
	}
}

func TestNew_Unterminated(t *testing.T) {
	_, err := New(`echo "abc`)
	assert.Error(t, err)
}

func TestSetters(t *testing.T) {
	r, err := New("echo")
	require.NoError(t, err)

	_, ok := r.TimeLimit()
	assert.False(t, ok)
	_, ok = r.MemoryLimit()
	assert.False(t, ok)
	_, ok = r.OutFd()
	assert.False(t, ok)

	require.NoError(t, r.SetTimeLimit(1000))
	require.NoError(t, r.SetCPUTimeLimit(500))
	require.NoError(t, r.SetMemoryLimit(65536))
	require.NoError(t, r.SetInFd(0))
	require.NoError(t, r.SetOutFd(1))
	require.NoError(t, r.SetErrFd(2))
	require.NoError(t, r.SetWorkDir("/tmp"))
	require.NoError(t, r.SetEnv([]string{"A=b"}))

	v, ok := r.TimeLimit()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), v)
	v, ok = r.CPUTimeLimit()
	assert.True(t, ok)
	assert.Equal(t, int64(500), v)
	v, ok = r.MemoryLimit()
	assert.True(t, ok)
	assert.Equal(t, int64(65536), v)
	fd, ok := r.InFd()
	assert.True(t, ok)
	assert.Equal(t, 0, fd)
	fd, _ = r.ErrFd()
	assert.Equal(t, 2, fd)
	assert.Equal(t, "/tmp", r.WorkDir())
	assert.Equal(t, []string{"A=b"}, r.Env())

	assert.ErrorIs(t, r.SetTimeLimit(0), ErrInvalidLimit)
	assert.ErrorIs(t, r.SetMemoryLimit(-1), ErrInvalidLimit)
	assert.ErrorIs(t, r.SetCPUTimeLimit(-5), ErrInvalidLimit)

	// would overflow time.Duration and byte counts
	assert.ErrorIs(t, r.SetTimeLimit(math.MaxInt64), ErrInvalidLimit)
	assert.ErrorIs(t, r.SetCPUTimeLimit(math.MaxInt64/1000), ErrInvalidLimit)
	assert.ErrorIs(t, r.SetMemoryLimit(math.MaxInt64), ErrInvalidLimit)
	assert.ErrorIs(t, r.SetMemoryLimit(1<<53), ErrInvalidLimit)
	require.NoError(t, r.SetTimeLimit(math.MaxInt64/int64(time.Millisecond)))
	require.NoError(t, r.SetMemoryLimit(1<<53-1))
	ms, _ := r.TimeLimit()
	assert.Equal(t, math.MaxInt64/int64(time.Millisecond), ms)
	assert.Positive(t, r.limit().WallTime)
	assert.Positive(t, int64(r.limit().MemoryLimit))
	assert.ErrorIs(t, r.SetOutFd(-1), ErrInvalidFd)
}

func TestString(t *testing.T) {
	r, err := New("sleep 3")
	require.NoError(t, err)
	assert.Equal(t, "command:      sleep 3", r.String())

	require.NoError(t, r.SetTimeLimit(1000))
	require.NoError(t, r.SetMemoryLimit(2048))
	assert.Equal(t, "command:      sleep 3\ntime limit:   1000\nmemory limit: 2048", r.String())
}

func TestRun_Echo(t *testing.T) {
	t.Parallel()
	r, err := New("echo Hello World!")
	require.NoError(t, err)

	o, err := r.Run()
	require.NoError(t, err)

	assert.Equal(t, Exited, o.Kind())
	code, ok := o.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	_, ok = o.Signal()
	assert.False(t, ok)
	assert.False(t, o.LimitExceeded())
	assert.Less(t, o.TimeUsed(), int64(1000))
	assert.Greater(t, o.MemoryUsed(), int64(0))
}

func TestRun_TimeLimit(t *testing.T) {
	t.Parallel()
	r, err := New("sleep 3")
	require.NoError(t, err)
	require.NoError(t, r.SetTimeLimit(1000))

	o, err := r.Run()
	require.NoError(t, err)

	assert.Equal(t, TimeLimitExceeded, o.Kind())
	assert.True(t, o.LimitExceeded())
	sig, ok := o.Signal()
	assert.True(t, ok)
	assert.Equal(t, syscall.SIGKILL, sig)
	_, ok = o.ExitCode()
	assert.False(t, ok)
	assert.InDelta(t, 1000, o.TimeUsed(), 500)
}

func TestRun_MemoryLimit(t *testing.T) {
	t.Parallel()
	r, err := New(`sh -c 'a=0123456789; while :; do a="$a$a"; done'`)
	require.NoError(t, err)
	require.NoError(t, r.SetTimeLimit(10000))
	require.NoError(t, r.SetMemoryLimit(16384))

	o, err := r.Run()
	require.NoError(t, err)

	assert.Equal(t, MemoryLimitExceeded, o.Kind())
	assert.True(t, o.LimitExceeded())
	assert.Greater(t, o.MemoryUsed(), int64(16384))
}

func TestRun_Config(t *testing.T) {
	t.Parallel()
	r, err := New(`sh -c 'kill -0 $$'`)
	require.NoError(t, err)
	c := process.DefaultConfig()
	c.DeniedSyscalls = []string{"kill"}
	require.NoError(t, r.SetConfig(c))

	o, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Exited, o.Kind())
	code, ok := o.ExitCode()
	assert.True(t, ok)
	assert.NotEqual(t, 0, code)
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()
	m := metrics.NewPrometheus()
	r, err := New("definitely-not-a-command-river --flag")
	require.NoError(t, err)
	require.NoError(t, r.SetRecorder(m))

	o, err := r.Run()
	assert.Nil(t, o)

	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpLookup, se.Op)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SetupFailuresTotal.WithLabelValues(OpLookup)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SetupFailuresTotal))
}

func TestRun_Redirection(t *testing.T) {
	t.Parallel()
	out, err := pipe.NewBuffer(1024)
	require.NoError(t, err)
	errOut, err := pipe.NewBuffer(1024)
	require.NoError(t, err)

	in, err := os.CreateTemp(t.TempDir(), "in")
	require.NoError(t, err)
	_, err = in.WriteString("from stdin")
	require.NoError(t, err)
	_, err = in.Seek(0, 0)
	require.NoError(t, err)
	defer in.Close()

	r, err := New(`sh -c 'cat; echo to-err >&2'`)
	require.NoError(t, err)
	require.NoError(t, r.SetInFd(int(in.Fd())))
	require.NoError(t, r.SetOutFd(int(out.W.Fd())))
	require.NoError(t, r.SetErrFd(int(errOut.W.Fd())))

	o, err := r.Run()
	out.W.Close()
	errOut.W.Close()
	require.NoError(t, err)
	<-out.Done
	<-errOut.Done

	assert.Equal(t, Exited, o.Kind())
	assert.Equal(t, "from stdin", out.Buffer.String())
	assert.Equal(t, "to-err\n", errOut.Buffer.String())
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	run := func() *RunOutcome {
		r, err := New(`sh -c 'exit 7'`)
		require.NoError(t, err)
		o, err := r.Run()
		require.NoError(t, err)
		return o
	}
	a, b := run(), run()
	assert.Equal(t, a.Kind(), b.Kind())
	codeA, okA := a.ExitCode()
	codeB, okB := b.ExitCode()
	assert.Equal(t, okA, okB)
	assert.Equal(t, 7, codeA)
	assert.Equal(t, codeA, codeB)
}

func TestRun_Twice(t *testing.T) {
	t.Parallel()
	r, err := New("true")
	require.NoError(t, err)

	_, err = r.Run()
	require.NoError(t, err)
	assert.True(t, r.Ran())

	o, err := r.Run()
	assert.Nil(t, o)
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.ErrorIs(t, r.SetTimeLimit(1000), ErrAlreadyRun)
}

func TestRun_Concurrent(t *testing.T) {
	t.Parallel()
	r, err := New("sleep 1")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRun)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestRunContext_Cancel(t *testing.T) {
	t.Parallel()
	r, err := New("sleep 10")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	o, err := r.RunContext(ctx)
	assert.Nil(t, o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpCancel, se.Op)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_Metrics(t *testing.T) {
	t.Parallel()
	m := metrics.NewPrometheus()
	r, err := New(`sh -c 'kill -TERM $$'`)
	require.NoError(t, err)
	require.NoError(t, r.SetRecorder(m))

	o, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, Signaled, o.Kind())
	sig, ok := o.Signal()
	assert.True(t, ok)
	assert.Equal(t, syscall.SIGTERM, sig)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("signaled")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunsTotal))
}

func TestRun_Span(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r, err := New("true")
	require.NoError(t, err)
	_, err = r.Run()
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "river.run", spans[0].Name)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "exited", attrs[string(AttrKind)])
	assert.Equal(t, "0", attrs[string(AttrExitCode)])
	assert.NotEmpty(t, attrs[string(AttrRunID)])
}

func TestOutcomeYAML(t *testing.T) {
	o := &RunOutcome{kind: TimeLimitExceeded, timeUsed: 1001, memoryUsed: 512, signal: syscall.SIGKILL}
	b, err := yaml.Marshal(o)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal(b, &got))
	assert.Equal(t, "time_limit_exceeded", got["kind"])
	assert.Equal(t, 9, got["signal"])
	assert.NotContains(t, got, "exit_code")
}
