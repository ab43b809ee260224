// Package channel wraps a kernel pipe shared between a parent and a
// re-executed child.
package channel

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Descriptor numbers of the endpoints in the child, in ExtraFiles order.
const (
	InheritedReadFD  = 3
	InheritedWriteFD = 4
)

var (
	// ErrChannelCreationFailed is returned when the OS cannot allocate a pipe.
	ErrChannelCreationFailed = errors.New("channel creation failed")
	// ErrNotInherited is returned by Inherited when the endpoints are missing.
	ErrNotInherited = errors.New("channel endpoints not inherited")
)

// pipe2 is swapped in tests to simulate descriptor exhaustion.
var pipe2 = unix.Pipe2

// Pipe holds the two endpoints of one channel. Each endpoint is closed at
// most once; a closed endpoint is nil.
type Pipe struct {
	Read  *os.File
	Write *os.File
}

// Create allocates a new pipe. Both descriptors are close-on-exec; the child
// only receives them when they are passed through ExtraFiles.
func Create() (*Pipe, error) {
	var fds [2]int
	if err := pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelCreationFailed, err)
	}
	return &Pipe{
		Read:  os.NewFile(uintptr(fds[0]), "pipe-read"),
		Write: os.NewFile(uintptr(fds[1]), "pipe-write"),
	}, nil
}

// Inherited opens the endpoints a parent passed down with ExtraFiles.
func Inherited() (*Pipe, error) {
	for _, fd := range []int{InheritedReadFD, InheritedWriteFD} {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			return nil, fmt.Errorf("%w: descriptor %d: %w", ErrNotInherited, fd, err)
		}
	}
	return &Pipe{
		Read:  os.NewFile(InheritedReadFD, "pipe-read"),
		Write: os.NewFile(InheritedWriteFD, "pipe-write"),
	}, nil
}

// ExtraFiles returns the endpoints in the order Inherited expects them.
func (p *Pipe) ExtraFiles() []*os.File {
	return []*os.File{p.Read, p.Write}
}

// CloseRead closes the read end if it is still open.
func (p *Pipe) CloseRead() error {
	if p.Read == nil {
		return nil
	}
	err := p.Read.Close()
	p.Read = nil
	return err
}

// CloseWrite closes the write end if it is still open.
func (p *Pipe) CloseWrite() error {
	if p.Write == nil {
		return nil
	}
	err := p.Write.Close()
	p.Write = nil
	return err
}

// Close releases whichever endpoints are still open.
func (p *Pipe) Close() error {
	return errors.Join(p.CloseRead(), p.CloseWrite())
}

// WriteFull writes all of b, looping over short writes.
func WriteFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// ReadOnce performs exactly one read of at most capacity-1 bytes and returns
// what arrived. A short read is not an error, and neither is io.EOF.
func ReadOnce(r io.Reader, capacity int) ([]byte, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("buffer capacity %d too small", capacity)
	}
	buf := make([]byte, capacity)
	n, err := r.Read(buf[:capacity-1])
	if err != nil && !errors.Is(err, io.EOF) {
		return buf[:n], err
	}
	return buf[:n], nil
}

// ReadUntilEOF keeps reading until the writer closes or capacity-1 bytes
// have arrived.
func ReadUntilEOF(r io.Reader, capacity int) ([]byte, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("buffer capacity %d too small", capacity)
	}
	return io.ReadAll(io.LimitReader(r, int64(capacity-1)))
}
