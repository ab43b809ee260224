package channel

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const message = "Hello from the parent process!"

func TestCreate_TransfersInOrder(t *testing.T) {
	p, err := Create()
	require.NoError(t, err)
	defer p.Close()

	n, err := WriteFull(p.Write, []byte(message))
	require.NoError(t, err)
	assert.Equal(t, len(message), n)
	require.NoError(t, p.CloseWrite())

	got, err := ReadOnce(p.Read, 100)
	require.NoError(t, err)
	assert.Equal(t, message, string(got))

	// Writer closed and buffer drained: the next read sees EOF, not a block.
	got, err = ReadOnce(p.Read, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreate_CloseOnExec(t *testing.T) {
	p, err := Create()
	require.NoError(t, err)
	defer p.Close()

	for _, f := range p.ExtraFiles() {
		flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFD, 0)
		require.NoError(t, err)
		assert.NotZero(t, flags&unix.FD_CLOEXEC)
	}
}

func TestCreate_Failure(t *testing.T) {
	orig := pipe2
	t.Cleanup(func() { pipe2 = orig })
	pipe2 = func([]int, int) error { return unix.EMFILE }

	p, err := Create()
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrChannelCreationFailed)
	assert.ErrorIs(t, err, unix.EMFILE)
}

func TestPipe_CloseIsIdempotent(t *testing.T) {
	p, err := Create()
	require.NoError(t, err)

	require.NoError(t, p.CloseRead())
	assert.Nil(t, p.Read)
	assert.NoError(t, p.CloseRead())
	assert.NoError(t, p.Close())
	assert.Nil(t, p.Write)
}

func TestExtraFiles_Order(t *testing.T) {
	p, err := Create()
	require.NoError(t, err)
	defer p.Close()

	files := p.ExtraFiles()
	require.Len(t, files, 2)
	assert.Same(t, p.Read, files[InheritedReadFD-3])
	assert.Same(t, p.Write, files[InheritedWriteFD-3])
}

// chunkWriter accepts at most size bytes per call without reporting an error.
type chunkWriter struct {
	size  int
	calls int
	buf   bytes.Buffer
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.calls++
	if len(p) > w.size {
		p = p[:w.size]
	}
	return w.buf.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write([]byte) (int, error) { return 0, nil }

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after == 0 {
		return 0, errors.New("broken pipe")
	}
	n := min(len(p), w.after)
	w.after -= n
	return n, nil
}

func TestWriteFull(t *testing.T) {
	t.Run("loops over short writes", func(t *testing.T) {
		w := &chunkWriter{size: 4}
		n, err := WriteFull(w, []byte(message))
		require.NoError(t, err)
		assert.Equal(t, len(message), n)
		assert.Equal(t, message, w.buf.String())
		assert.Equal(t, (len(message)+3)/4, w.calls)
	})

	t.Run("zero progress", func(t *testing.T) {
		n, err := WriteFull(stuckWriter{}, []byte("x"))
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("error mid-way", func(t *testing.T) {
		n, err := WriteFull(&failingWriter{after: 5}, []byte(message))
		assert.Equal(t, 5, n)
		assert.EqualError(t, err, "broken pipe")
	})

	t.Run("empty", func(t *testing.T) {
		n, err := WriteFull(stuckWriter{}, nil)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestReadOnce(t *testing.T) {
	t.Run("caps at capacity minus one", func(t *testing.T) {
		got, err := ReadOnce(bytes.NewReader([]byte(message)), 6)
		require.NoError(t, err)
		assert.Equal(t, "Hello", string(got))
	})

	t.Run("short read is accepted", func(t *testing.T) {
		got, err := ReadOnce(iotest.OneByteReader(bytes.NewReader([]byte(message))), 100)
		require.NoError(t, err)
		assert.Equal(t, "H", string(got))
	})

	t.Run("read error", func(t *testing.T) {
		_, err := ReadOnce(iotest.ErrReader(errors.New("boom")), 100)
		assert.EqualError(t, err, "boom")
	})

	t.Run("capacity too small", func(t *testing.T) {
		_, err := ReadOnce(bytes.NewReader(nil), 1)
		assert.Error(t, err)
	})
}

func TestReadUntilEOF(t *testing.T) {
	got, err := ReadUntilEOF(iotest.OneByteReader(bytes.NewReader([]byte(message))), 100)
	require.NoError(t, err)
	assert.Equal(t, message, string(got))

	got, err = ReadUntilEOF(bytes.NewReader([]byte(message)), 6)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(got))

	_, err = ReadUntilEOF(bytes.NewReader(nil), 0)
	assert.Error(t, err)
}

func TestInherited_Missing(t *testing.T) {
	// The test binary is not started with endpoints on 3 and 4, but the Go
	// runtime or test harness may hold those numbers; only check when free.
	if _, err := unix.FcntlInt(InheritedReadFD, unix.F_GETFD, 0); err == nil {
		t.Skip("descriptor 3 is in use by the test process")
	}
	_, err := Inherited()
	assert.ErrorIs(t, err, ErrNotInherited)
}
