package proc

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Stat holds the parts of /proc/<pid>/stat the demos report.
type Stat struct {
	PID   int
	PPID  int
	Comm  string
	State string
}

// Lookup reads /proc/<pid>/stat for the given process.
func Lookup(pid int) (Stat, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return Stat{}, fmt.Errorf("open /proc/%d: %w", pid, err)
	}
	st, err := p.Stat()
	if err != nil {
		return Stat{}, fmt.Errorf("read stat for PID %d: %w", pid, err)
	}
	return Stat{
		PID:   st.PID,
		PPID:  st.PPID,
		Comm:  st.Comm,
		State: st.State,
	}, nil
}

// Exists reports whether a process with the given PID is still visible in
// /proc. A reaped child is not; a zombie still is.
func Exists(pid int) bool {
	_, err := procfs.NewProc(pid)
	return err == nil
}
