//go:build linux

package forkexec

import (
	"golang.org/x/sys/unix"
)

// seccomp syscall operation
const (
	SECCOMP_SET_MODE_FILTER = 1
)

var (
	// interval between execve retries on ETXTBSY
	etxtbsyRetryInterval = unix.Timespec{
		Nsec: 20 * 1000 * 1000,
	}
)
