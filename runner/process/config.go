package process

import (
	"math"
	"time"

	"github.com/criyle/river/pkg/rlimit"
	"github.com/criyle/river/runner"
)

// DefaultSampleInterval is the period of memory sampling
const DefaultSampleInterval = 5 * time.Millisecond

// DefaultAddressSpaceFactor leaves room above the memory limit, so a
// program going over it is observed by the sampler before the kernel
// denies its allocations
const DefaultAddressSpaceFactor = 2

// Config tunes how limits are translated into rlimits and how the
// running process is observed
type Config struct {
	// SampleInterval is the period of the memory sampler
	SampleInterval time.Duration

	// AddressSpaceFactor multiplies the memory limit into RLIMIT_AS.
	// 0 leaves the address space unlimited and relies on the sampler
	AddressSpaceFactor uint64

	// SkipExitStop runs the program untraced. Its peak memory is then
	// only known from the periodic samples.
	SkipExitStop bool

	// DeniedSyscalls fail with EPERM in the program
	DeniedSyscalls []string

	// StackLimit sets RLIMIT_STACK, 0 to inherit
	StackLimit runner.Size

	// OutputLimit sets RLIMIT_FSIZE, 0 to inherit
	OutputLimit runner.Size

	// OpenFileLimit sets RLIMIT_NOFILE, 0 to inherit
	OpenFileLimit uint64
}

// DefaultConfig returns the config used when none is given
func DefaultConfig() Config {
	return Config{
		SampleInterval:     DefaultSampleInterval,
		AddressSpaceFactor: DefaultAddressSpaceFactor,
	}
}

func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	return c
}

// cpuLimit is the effective CPU time limit, the wall time limit is used
// when no CPU time limit is given
func cpuLimit(l runner.Limit) time.Duration {
	if l.CPUTime > 0 {
		return l.CPUTime
	}
	return l.WallTime
}

// RLimits translates l into the rlimits installed before execve
func (c Config) RLimits(l runner.Limit) rlimit.RLimits {
	r := rlimit.RLimits{
		Stack:       c.StackLimit.Byte(),
		FileSize:    c.OutputLimit.Byte(),
		OpenFile:    c.OpenFileLimit,
		DisableCore: true,
	}
	if cpu := cpuLimit(l); cpu > 0 {
		r.CPU = rlimit.CPUSeconds(cpu)
		// SIGXCPU at soft, SIGKILL at hard
		r.CPUHard = r.CPU + 1
	}
	// an overflowing ceiling is left unlimited
	if m := l.MemoryLimit.Byte(); m > 0 && c.AddressSpaceFactor > 0 && m <= math.MaxUint64/c.AddressSpaceFactor {
		r.AddressSpace = m * c.AddressSpaceFactor
	}
	return r
}
