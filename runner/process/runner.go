package process

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/criyle/river/pkg/usage"
	"github.com/criyle/river/runner"
)

var _ runner.Runner = (*Runner)(nil)

// Runner describes one program execution
type Runner struct {
	// argv and env for the child process
	// Args[0] is resolved through PATH when it contains no slash
	Args []string
	Env  []string

	// WorkDir is the current dir of the child, empty to inherit
	WorkDir string

	// Files are the descriptors for the child's fd 0, 1, 2 ...
	// A negative or missing entry within the first three is replaced
	// by /dev/null, so nothing from the parent is inherited by accident
	Files []int

	// Limit is the resource limit enforced on the child
	Limit runner.Limit

	// Config tunes the limiter and the monitor, nil means DefaultConfig()
	Config *Config

	// Logger receives debug information about the run
	Logger zerolog.Logger

	// NewSampler creates the memory sampler for the child, defaults to
	// usage.NewSampler
	NewSampler func(ctx context.Context, pid int) (usage.Sampler, error)
}

func (r *Runner) config() Config {
	if r.Config == nil {
		return DefaultConfig()
	}
	return r.Config.withDefaults()
}

func (r *Runner) newSampler() func(context.Context, int) (usage.Sampler, error) {
	if r.NewSampler != nil {
		return r.NewSampler
	}
	return usage.NewSampler
}
