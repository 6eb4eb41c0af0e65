// Package pipe creates os pipes whose read end is drained by a goroutine
// into a bounded buffer, so a child process could write its output
// without blocking on a full pipe.
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer holds the write end of a pipe and the bytes collected from its
// read end. At most Max+1 bytes are kept so overflow could be detected.
type Buffer struct {
	W      *os.File
	Max    int64
	Buffer *bytes.Buffer
	Done   <-chan struct{}
}

// NewPipe creates a pipe and copies at most n bytes from its read end to
// writer. The rest is drained so the writer never sees EPIPE.
// Done is closed once the copy finished; caller need to close w.
func NewPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		defer r.Close()
		io.CopyN(writer, r, n)
		close(done)
		io.Copy(io.Discard, r)
	}()
	return done, w, nil
}

// NewBuffer creates a pipe collecting at most max bytes.
// Done is closed once max+1 bytes were read or the read end hit EOF.
// EOF only comes after every copy of W is closed, including the one
// held by the parent after passing W to a child.
func NewBuffer(max int64) (*Buffer, error) {
	buffer := new(bytes.Buffer)
	done, w, err := NewPipe(buffer, max+1)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

// Truncated reports whether the writer produced more than Max bytes.
// Only valid after Done.
func (b *Buffer) Truncated() bool {
	return int64(b.Buffer.Len()) > b.Max
}

// Bytes returns the collected output capped at Max. Only valid after Done.
func (b *Buffer) Bytes() []byte {
	if b.Truncated() {
		return b.Buffer.Bytes()[:b.Max]
	}
	return b.Buffer.Bytes()
}

func (b Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}
