package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Start will fork, install rlimits, remap fds and execve
// Return pid and potential error. When Start returns without error,
// the child process has successfully called execve
func (r *Runner) Start() (int, error) {
	if len(r.Args) == 0 {
		return 0, syscall.EINVAL
	}
	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	// prepare work dir
	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, err
	}

	// socketpair p is used to sync with parent before final execve
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		childErr ChildError
		n        int
		err      error
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, ChildError{Err: err1, Location: LocClone}
	}

	// child reports ready (zero error) right before execve
	n, err = readChildError(p[0], &childErr)
	if err != nil || n != int(unsafe.Sizeof(childErr)) || childErr.Err != 0 {
		err = handlePipeError(n, err, childErr)
		goto fail
	}

	// if syncfunc return error, then fail child immediately
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}

	// otherwise, ack child
	if err = writeAck(p[0]); err != nil {
		goto fail
	}

	// if read anything mean child failed after sync (close_on_exec so it should not block)
	n, err = readChildError(p[0], &childErr)
	unix.Close(p[0])
	if err != nil || n != 0 {
		err = handlePipeError(n, err, childErr)
		goto failAfterClose
	}
	return pid, nil

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	return 0, err
}

func readChildError(fd int, childErr *ChildError) (int, error) {
	buf := (*[unsafe.Sizeof(ChildError{})]byte)(unsafe.Pointer(childErr))[:]
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func writeAck(fd int) error {
	var ack syscall.Errno
	buf := (*[unsafe.Sizeof(ack)]byte)(unsafe.Pointer(&ack))[:]
	for {
		_, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// check pipe error
func handlePipeError(n int, err error, childErr ChildError) error {
	if err != nil {
		return err
	}
	if n == int(unsafe.Sizeof(childErr)) {
		return childErr
	}
	return syscall.EPIPE
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
