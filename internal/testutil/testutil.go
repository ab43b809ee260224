// Package testutil holds helpers shared by tests that re-execute the test
// binary as a demo process.
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// LockedBuffer is a bytes.Buffer safe for the parent and the copy goroutines
// os/exec starts for a child's stdout and stderr.
type LockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Result is the outcome of a re-executed test binary.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunSelf re-executes the test binary without arguments and with env added
// to the current environment. Later entries override earlier ones.
func RunSelf(t *testing.T, env ...string) Result {
	t.Helper()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{}
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		require.NoError(t, err)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res
}

// LimitFreeFDs lowers the soft RLIMIT_NOFILE so that exactly n more
// descriptors can be allocated by this process.
func LimitFreeFDs(n int) error {
	dir, err := os.Open("/proc/self/fd")
	if err != nil {
		return fmt.Errorf("open fd dir: %w", err)
	}
	own := int(dir.Fd())
	names, err := dir.Readdirnames(-1)
	dir.Close()
	if err != nil {
		return fmt.Errorf("list fds: %w", err)
	}

	used := make(map[int]bool, len(names))
	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil || fd == own {
			continue
		}
		used[fd] = true
	}

	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("get rlimit: %w", err)
	}
	rl.Cur = uint64(freeLimit(used, n))
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("set rlimit: %w", err)
	}
	return nil
}

// freeLimit returns the smallest limit that leaves exactly n descriptors
// below it unused.
func freeLimit(used map[int]bool, n int) int {
	limit, free := 0, 0
	for free < n {
		if !used[limit] {
			free++
		}
		limit++
	}
	return limit
}
