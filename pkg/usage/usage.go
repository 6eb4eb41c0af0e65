// Package usage samples the memory of a running process and its
// descendants and keeps the peak across samples.
package usage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/criyle/river/runner"
)

// maxDescendants bounds the process tree walked by one sample
const maxDescendants = 256

// ErrNoMemory is returned for a process without an address space,
// which is the case once it became a zombie
var ErrNoMemory = errors.New("usage: process has no address space")

// Usage is one memory reading
type Usage struct {
	// Resident is the peak resident set size. It is the kernel tracked
	// high-water mark of the process, or the current total resident size
	// of the process and its descendants when that is larger.
	Resident runner.Size

	// Virtual is the peak address space size of the process
	Virtual runner.Size
}

// Sampler reads the memory usage of a process
type Sampler interface {
	Sample(ctx context.Context) (Usage, error)
}

// SamplerFunc adapts a function to Sampler
type SamplerFunc func(ctx context.Context) (Usage, error)

// Sample calls f(ctx)
func (f SamplerFunc) Sample(ctx context.Context) (Usage, error) {
	return f(ctx)
}

// injectable for testing
var (
	newProcFn    = procfs.NewProc
	newProcessFn = process.NewProcessWithContext
)

// treeSampler reads /proc/<pid>/status through procfs for the process
// itself and the resident size of its descendants through gopsutil
type treeSampler struct {
	pid  int
	proc procfs.Proc
}

// NewSampler creates a Sampler bound to pid. It fails when the process
// does not exist anymore.
func NewSampler(_ context.Context, pid int) (Sampler, error) {
	p, err := newProcFn(pid)
	if err != nil {
		return nil, err
	}
	return &treeSampler{pid: pid, proc: p}, nil
}

func (s *treeSampler) Sample(ctx context.Context) (Usage, error) {
	st, err := s.proc.NewStatus()
	if err != nil {
		return Usage{}, err
	}
	if st.VmPeak == 0 && st.VmHWM == 0 {
		return Usage{}, ErrNoMemory
	}
	u := Usage{
		Resident: runner.Size(max(st.VmHWM, st.VmRSS)),
		Virtual:  runner.Size(max(st.VmPeak, st.VmSize)),
	}
	if rss := s.descendantRSS(ctx); rss > 0 {
		if total := runner.Size(st.VmRSS) + rss; total > u.Resident {
			u.Resident = total
		}
	}
	return u, nil
}

// descendantRSS sums the current resident size of every descendant
func (s *treeSampler) descendantRSS(ctx context.Context) runner.Size {
	var (
		total runner.Size
		queue = children(s.pid)
		seen  = 0
	)
	for len(queue) > 0 && seen < maxDescendants {
		pid := queue[0]
		queue = append(queue[1:], children(pid)...)
		seen++

		p, err := newProcessFn(ctx, int32(pid))
		if err != nil {
			continue
		}
		m, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			continue
		}
		total += runner.Size(m.RSS)
	}
	return total
}

// children lists the direct children of pid from the children file of
// each of its threads
func children(pid int) []int {
	threads, err := procfs.AllThreads(pid)
	if err != nil {
		return nil
	}
	var pids []int
	for _, t := range threads {
		b, err := os.ReadFile(filepath.Join(procfs.DefaultMountPoint,
			strconv.Itoa(pid), "task", strconv.Itoa(t.PID), "children"))
		if err != nil {
			continue
		}
		for _, f := range strings.Fields(string(b)) {
			if c, err := strconv.Atoi(f); err == nil {
				pids = append(pids, c)
			}
		}
	}
	return pids
}

// Peak is the field-wise maximum of observed usages, safe for concurrent use
type Peak struct {
	resident atomic.Uint64
	virtual  atomic.Uint64
}

// Observe records u and reports whether it raised the resident peak
func (p *Peak) Observe(u Usage) bool {
	raise(&p.virtual, uint64(u.Virtual))
	return raise(&p.resident, uint64(u.Resident))
}

// Load returns the current peak
func (p *Peak) Load() Usage {
	return Usage{
		Resident: runner.Size(p.resident.Load()),
		Virtual:  runner.Size(p.virtual.Load()),
	}
}

func raise(v *atomic.Uint64, s uint64) bool {
	for {
		cur := v.Load()
		if s <= cur {
			return false
		}
		if v.CompareAndSwap(cur, s) {
			return true
		}
	}
}

// Poll samples s into peak right away and then every interval until ctx
// is done. After each successful sample, exceeded is called with it and
// polling stops once it returns true. Errors are skipped since the
// process is usually on its way out.
func Poll(ctx context.Context, s Sampler, interval time.Duration, peak *Peak, exceeded func(Usage) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if u, err := s.Sample(ctx); err == nil {
			peak.Observe(u)
			if exceeded != nil && exceeded(u) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
