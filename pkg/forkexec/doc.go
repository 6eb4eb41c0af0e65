// Package forkexec provides interface to start a subprocess with its
// standard descriptors remapped, in its own session (process group) and
// with rlimits installed before the target program is executed.
//
// The child is created by a raw clone syscall and only performs raw
// syscalls until execve, so the limits are in effect before the first
// instruction of the target program runs.
//
// prlimit64 requires kernel >= 2.6.36
// dup3 requires kernel >= 2.6.27
package forkexec
