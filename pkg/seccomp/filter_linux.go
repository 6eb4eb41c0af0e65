// Package seccomp assembles the seccomp filter installed in the child
// right before execve.
package seccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Filter is the assembled BPF seccomp program
type Filter []syscall.SockFilter

// SockFprog converts Filter to SockFprog for seccomp syscall
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}

// the child needs these between the filter and a successful execve
var essential = map[string]bool{
	"execve":     true,
	"exit":       true,
	"exit_group": true,
}

// Deny builds a filter failing every syscall in names with EPERM and
// allowing the rest. It returns nil for an empty list.
func Deny(names []string) (Filter, error) {
	if len(names) == 0 {
		return nil, nil
	}
	for _, n := range names {
		if essential[n] {
			return nil, fmt.Errorf("seccomp: %s cannot be denied", n)
		}
	}

	policy := libseccomp.Policy{
		DefaultAction: libseccomp.ActionAllow,
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionErrno | libseccomp.Action(syscall.EPERM),
				Names:  names,
			},
		},
	}
	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: %w", err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: %w", err)
	}

	f := make(Filter, len(raw))
	for i, r := range raw {
		f[i] = syscall.SockFilter{Code: r.Op, Jt: r.Jt, Jf: r.Jf, K: r.K}
	}
	return f, nil
}
