// Package process runs a single program under resource limits and
// reports its usage.
//
// The child is created by pkg/forkexec in its own process group with the
// limits installed by setrlimit before execve. A monitor then races the
// termination of the child against the wall clock timer, the memory
// sampler and the caller's context. Whichever fires first kills the whole
// process group. The child is always reaped with wait4 before Run returns.
//
// Unless Config.SkipExitStop is set the child is traced by the thread that
// started it, only to take a last memory sample at its ptrace exit stop.
package process
