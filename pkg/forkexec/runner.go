package forkexec

import (
	"syscall"

	"github.com/criyle/river/pkg/rlimit"
)

// Runner is the configuration including the exec path, argv
// and resource limits of the child process
type Runner struct {
	// argv and env for execve syscall for the child process
	// Args[0] should be the path to the executable
	Args []string
	Env  []string

	// POSIX Resource limit set by prlimit before execve
	RLimits []rlimit.RLimit

	// file descriptors map for new process, from 0 to len - 1
	Files []uintptr

	// work path set by chdir(dir) (current working directory for child)
	WorkDir string

	// Seccomp filter loaded with no_new_privs right before execve
	Seccomp *syscall.SockFprog

	// Ptrace calls PTRACE_TRACEME before execve, so the child stops with
	// SIGTRAP once execve succeeded. The calling thread becomes the tracer.
	// A failed PTRACE_TRACEME leaves the child untraced.
	Ptrace bool

	// Parent and child process with sync status through a socket pair.
	// SyncFunc will invoke with the child pid. If SyncFunc return some error,
	// parent will signal child to stop and report the error
	// SyncFunc is called right before execve, thus it could track time more accurately
	SyncFunc func(int) error
}
