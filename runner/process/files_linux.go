package process

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// prepareFiles maps r.Files onto the fd table of the child. The returned
// files were opened here and need to be closed once the child started.
func prepareFiles(files []int) ([]uintptr, []*os.File, error) {
	n := max(len(files), 3)
	fds := make([]uintptr, n)

	var null *os.File
	closeNull := func() {
		if null != nil {
			null.Close()
		}
	}
	for i := 0; i < n; i++ {
		fd := -1
		if i < len(files) {
			fd = files[i]
		}
		if fd < 0 {
			if i >= 3 {
				closeNull()
				return nil, nil, fmt.Errorf("fd %d: %w", i, unix.EBADF)
			}
			if null == nil {
				f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
				if err != nil {
					return nil, nil, err
				}
				null = f
			}
			fds[i] = null.Fd()
			continue
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			closeNull()
			return nil, nil, fmt.Errorf("fd %d: %w", fd, err)
		}
		fds[i] = uintptr(fd)
	}
	if null == nil {
		return fds, nil, nil
	}
	return fds, []*os.File{null}, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
