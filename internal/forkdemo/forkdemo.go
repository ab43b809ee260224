// Package forkdemo duplicates the process once and has each side print who
// it is, followed by a line both sides print independently.
package forkdemo

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"syscall-demos/internal/config"
	"syscall-demos/internal/output"
	"syscall-demos/internal/proc"
)

const Name = "forkdemo"

type Runner struct {
	Config config.Config
	Stdout io.Writer
	Stderr io.Writer
	// Executable overrides the binary re-executed as the child.
	Executable string
}

func (r *Runner) Run() error {
	transcript := output.NewTranscript(r.Config.Transcript)
	defer transcript.Close()

	runID := uuid.NewString()
	printer := output.NewPrinter(r.Stdout, transcript, proc.Self(runID))

	// The re-executed child starts here too; only the first process has
	// anything to do before the duplication point.
	if !proc.IsChild() {
		printer.Println("Before duplication")
	}

	d := &proc.Duplicator{
		Path:   r.Executable,
		RunID:  runID,
		Stdout: r.Stdout,
		Stderr: r.Stderr,
	}
	id, err := d.Duplicate()
	if err != nil {
		return err
	}

	logger := slog.With("run_id", id.RunID, "role", id.Role.String(), "pid", id.PID)
	printer = printer.WithIdentity(id)

	switch id.Role {
	case proc.Child:
		printer.Printf("Child process: PID = %d, Parent PID = %d", id.PID, id.RelatedPID)
	case proc.Parent:
		output.IncrementProcessesSpawned()
		logChildStat(logger, d)
		printer.Printf("Parent process: PID = %d, Child PID = %d", id.PID, id.RelatedPID)
	}

	printer.Println("This line runs in both parent and child!")

	if err := d.Wait(); err != nil {
		logger.Warn("Reaping child failed", "child_pid", id.RelatedPID, "error", err)
	}

	if path, err := output.WriteMetricsTextfile(r.Config.MetricsDir, Name, id.Role.String()); err != nil {
		logger.Warn("Metrics textfile not written", "error", err)
	} else if path != "" {
		logger.Debug("Metrics textfile written", "path", path)
	}

	logger.Info("Done")
	return nil
}

func logChildStat(logger *slog.Logger, d *proc.Duplicator) {
	st, err := d.ChildStat()
	if err != nil {
		logger.Warn("Child stat unavailable", "error", err)
		return
	}
	logger.Debug("Child stat", "child_pid", st.PID, "ppid", st.PPID, "comm", st.Comm, "state", st.State)
}
