package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_ObserveRun(t *testing.T) {
	m := NewPrometheus()

	m.ObserveRun("exited", 20*time.Millisecond, 1024)
	m.ObserveRun("exited", 30*time.Millisecond, 2048)
	m.ObserveRun("time_limit_exceeded", time.Second, 512)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RunsTotal.WithLabelValues("exited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("time_limit_exceeded")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RunsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestPrometheus_ObserveSetupFailure(t *testing.T) {
	m := NewPrometheus()

	m.ObserveSetupFailure("lookup")
	m.ObserveSetupFailure("lookup")
	m.ObserveSetupFailure("start")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SetupFailuresTotal.WithLabelValues("lookup")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SetupFailuresTotal.WithLabelValues("start")))
}

func TestPrometheus_Registry(t *testing.T) {
	m := NewPrometheus()
	m.ObserveRun("exited", time.Millisecond, 100)
	m.ObserveSetupFailure("files")

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"river_runs_total",
		"river_run_duration_seconds",
		"river_run_memory_kilobytes",
		"river_setup_failures_total",
	}, names)
}

func TestPrometheus_WriteToTextfile(t *testing.T) {
	m := NewPrometheus()
	m.ObserveRun("signaled", 5*time.Millisecond, 300)

	path := filepath.Join(t.TempDir(), "river.prom")
	require.NoError(t, m.WriteToTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `river_runs_total{kind="signaled"} 1`))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveRun("exited", time.Second, 1)
		r.ObserveSetupFailure("lookup")
	})
}
