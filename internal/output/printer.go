package output

import (
	"fmt"
	"io"
	"log/slog"

	"syscall-demos/internal/proc"
	"syscall-demos/internal/report"
)

// Printer writes demo lines to stdout and mirrors them into the transcript.
type Printer struct {
	out        io.Writer
	transcript *Transcript
	id         proc.Identity
}

func NewPrinter(out io.Writer, transcript *Transcript, id proc.Identity) *Printer {
	return &Printer{out: out, transcript: transcript, id: id}
}

// WithIdentity returns a printer that stamps lines with id, used once the
// process knows which side of the duplication it is on.
func (p *Printer) WithIdentity(id proc.Identity) *Printer {
	return &Printer{out: p.out, transcript: p.transcript, id: id}
}

func (p *Printer) Println(text string) {
	line := report.New(p.id, text)
	fmt.Fprintln(p.out, line.Text)

	if p.transcript == nil {
		return
	}
	if err := p.transcript.Write(line.JSON()); err != nil {
		slog.Warn("Transcript write failed", "error", err)
	}
}

func (p *Printer) Printf(format string, args ...any) {
	p.Println(fmt.Sprintf(format, args...))
}
