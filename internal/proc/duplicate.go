// Package proc duplicates the running program into a parent and a child
// process. The Go runtime cannot survive a bare fork(2), so the child is the
// same binary re-executed with the same arguments and a role marker in its
// environment. Code that must only run before the duplication point checks
// IsChild.
package proc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	envRole      = "PROCDEMO_ROLE"
	envRunID     = "PROCDEMO_RUN_ID"
	envParentPID = "PROCDEMO_PARENT_PID"

	childMarker = "child"
)

var (
	// ErrDuplicationFailed is returned when the OS refuses to create the child.
	ErrDuplicationFailed = errors.New("process duplication failed")
	// ErrNotReaped is returned by Wait when the child is still in /proc.
	ErrNotReaped = errors.New("child still present after reaping")
)

// processExists is swapped in tests.
var processExists = Exists

// Role tells which branch of a duplication the current process is on.
type Role int

const (
	Parent Role = iota
	Child
)

func (r Role) String() string {
	switch r {
	case Parent:
		return "parent"
	case Child:
		return "child"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Identity is what each process knows about itself after duplicating.
// RelatedPID is the parent's PID in the child and the child's PID in the
// parent.
type Identity struct {
	Role       Role
	PID        int
	RelatedPID int
	RunID      string
}

// IsChild reports whether this process was started by Duplicate. The marker
// only counts when it names the actual parent, so a PROCDEMO_ROLE left over
// in a shell does not turn a fresh run into a child.
func IsChild() bool {
	if os.Getenv(envRole) != childMarker || os.Getenv(envRunID) == "" {
		return false
	}
	ppid, err := strconv.Atoi(os.Getenv(envParentPID))
	return err == nil && ppid == os.Getppid()
}

// Self returns the identity of the current process before duplication.
func Self(runID string) Identity {
	id := Identity{Role: Parent, PID: os.Getpid(), RelatedPID: os.Getppid(), RunID: runID}
	if IsChild() {
		id.Role = Child
		id.RunID = os.Getenv(envRunID)
	}
	return id
}

// Duplicator spawns the child half of a duplication and reaps it.
type Duplicator struct {
	// Path is the binary to re-execute. Empty means the running executable.
	Path string
	// Args are passed to the child. Nil means os.Args[1:].
	Args []string
	// RunID is handed to the child so both halves log the same run.
	RunID string

	Stdout io.Writer
	Stderr io.Writer

	// ExtraFiles are inherited by the child as descriptors 3, 4, ...
	ExtraFiles []*os.File

	cmd *exec.Cmd
}

// Duplicate returns twice in the sense that matters: once in the parent,
// which gets the child's PID, and once in the re-executed child, which gets
// its parent's PID.
func (d *Duplicator) Duplicate() (Identity, error) {
	if IsChild() {
		return Self(""), nil
	}

	path := d.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return Identity{}, fmt.Errorf("%w: locate executable: %w", ErrDuplicationFailed, err)
		}
		path = exe
	}

	args := d.Args
	if args == nil {
		args = os.Args[1:]
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(childEnv(os.Environ()),
		envRole+"="+childMarker,
		envRunID+"="+d.RunID,
		envParentPID+"="+strconv.Itoa(os.Getpid()),
	)
	cmd.Stdout = writerOr(d.Stdout, os.Stdout)
	cmd.Stderr = writerOr(d.Stderr, os.Stderr)
	cmd.ExtraFiles = d.ExtraFiles

	if err := cmd.Start(); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrDuplicationFailed, err)
	}
	d.cmd = cmd

	slog.Debug("Child process started", "child_pid", cmd.Process.Pid, "path", path)

	return Identity{
		Role:       Parent,
		PID:        os.Getpid(),
		RelatedPID: cmd.Process.Pid,
		RunID:      d.RunID,
	}, nil
}

// ChildStat reads the child's /proc entry. Until Wait returns the child is
// either running or a zombie, so the entry is always there.
func (d *Duplicator) ChildStat() (Stat, error) {
	if d.cmd == nil {
		return Stat{}, errors.New("no child started")
	}
	return Lookup(d.cmd.Process.Pid)
}

// Wait reaps the child and checks it is gone from /proc. It is a no-op in
// the child or before Duplicate.
func (d *Duplicator) Wait() error {
	if d.cmd == nil {
		return nil
	}
	pid := d.cmd.Process.Pid
	if err := d.cmd.Wait(); err != nil {
		return fmt.Errorf("wait for child %d: %w", pid, err)
	}
	if processExists(pid) {
		return fmt.Errorf("%w: PID %d", ErrNotReaped, pid)
	}
	return nil
}

// childEnv drops markers inherited from whoever started this process.
func childEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		switch key {
		case envRole, envRunID, envParentPID:
			continue
		}
		out = append(out, kv)
	}
	return out
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
