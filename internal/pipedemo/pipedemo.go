// Package pipedemo sends one fixed message from a parent to its child over a
// pipe.
package pipedemo

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"syscall-demos/internal/channel"
	"syscall-demos/internal/config"
	"syscall-demos/internal/output"
	"syscall-demos/internal/proc"
)

const (
	Name = "pipedemo"

	// Message is the payload the parent writes and the child expects.
	Message = "Hello from the parent process!"
)

type Runner struct {
	Config config.Config
	Stdout io.Writer
	Stderr io.Writer
	// Executable overrides the binary re-executed as the child.
	Executable string
	// NewChannel overrides channel.Create.
	NewChannel func() (*channel.Pipe, error)
}

func (r *Runner) Run() error {
	transcript := output.NewTranscript(r.Config.Transcript)
	defer transcript.Close()

	runID := uuid.NewString()
	printer := output.NewPrinter(r.Stdout, transcript, proc.Self(runID))

	// A re-executed child picks up the endpoints it inherited instead of
	// allocating a channel of its own.
	var (
		p   *channel.Pipe
		err error
	)
	if proc.IsChild() {
		p, err = channel.Inherited()
	} else {
		p, err = r.newChannel()
	}
	if err != nil {
		return err
	}
	defer p.Close()

	d := &proc.Duplicator{
		Path:       r.Executable,
		RunID:      runID,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		ExtraFiles: p.ExtraFiles(),
	}
	id, err := d.Duplicate()
	if err != nil {
		return err
	}

	logger := slog.With("run_id", id.RunID, "role", id.Role.String(), "pid", id.PID)
	printer = printer.WithIdentity(id)

	switch id.Role {
	case proc.Child:
		err = r.receive(p, printer, logger, id)
	case proc.Parent:
		output.IncrementProcessesSpawned()
		if st, statErr := d.ChildStat(); statErr != nil {
			logger.Warn("Child stat unavailable", "error", statErr)
		} else {
			logger.Debug("Child stat", "child_pid", st.PID, "ppid", st.PPID, "comm", st.Comm, "state", st.State)
		}
		err = r.send(p, printer, logger, id)
		if waitErr := d.Wait(); waitErr != nil {
			logger.Warn("Reaping child failed", "child_pid", id.RelatedPID, "error", waitErr)
		}
	}
	if err != nil {
		return err
	}

	if path, err := output.WriteMetricsTextfile(r.Config.MetricsDir, Name, id.Role.String()); err != nil {
		logger.Warn("Metrics textfile not written", "error", err)
	} else if path != "" {
		logger.Debug("Metrics textfile written", "path", path)
	}

	logger.Info("Done")
	return nil
}

func (r *Runner) newChannel() (*channel.Pipe, error) {
	if r.NewChannel != nil {
		return r.NewChannel()
	}
	return channel.Create()
}

// send is the parent side: it only writes, so the read end goes first.
func (r *Runner) send(p *channel.Pipe, printer *output.Printer, logger *slog.Logger, id proc.Identity) error {
	if err := p.CloseRead(); err != nil {
		logger.Warn("Closing read end failed", "error", err)
	}

	printer.Printf("Parent process: PID = %d, Child PID = %d", id.PID, id.RelatedPID)

	n, err := channel.WriteFull(p.Write, []byte(Message))
	output.AddPipeBytesWritten(n)
	if err != nil {
		// The child only sees EOF once no write end is left open.
		_ = p.CloseWrite()
		return fmt.Errorf("write message: %w", err)
	}
	logger.Debug("Message written", "bytes", n)

	if err := p.CloseWrite(); err != nil {
		return fmt.Errorf("close write end: %w", err)
	}
	return nil
}

// receive is the child side: it only reads, so the write end goes first.
func (r *Runner) receive(p *channel.Pipe, printer *output.Printer, logger *slog.Logger, id proc.Identity) error {
	if err := p.CloseWrite(); err != nil {
		logger.Warn("Closing write end failed", "error", err)
	}

	printer.Printf("Child process: PID = %d, Parent PID = %d", id.PID, id.RelatedPID)

	read := channel.ReadOnce
	if r.Config.ReadUntilEOF {
		read = channel.ReadUntilEOF
	}
	buf, err := read(p.Read, r.Config.BufferSize)
	output.AddPipeBytesRead(len(buf))
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	// Only what arrived is printed. A short read is reported, not retried.
	if len(buf) < len(Message) {
		output.IncrementShortReads()
		logger.Warn("Short read", "bytes", len(buf), "expected", len(Message))
	}

	printer.Printf("Child received: %s", buf)

	return p.CloseRead()
}
