package output

import (
	"fmt"
	"os"
	"sync"
)

// Transcript appends one JSON line per printed line to a file shared by the
// parent and the child. Each line goes out in a single O_APPEND write, so
// lines from the two processes interleave but never tear.
type Transcript struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewTranscript returns a transcript for path. An empty path disables it.
func NewTranscript(path string) *Transcript {
	return &Transcript{path: path}
}

func (t *Transcript) Write(line string) error {
	if t.path == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		if err := t.open(); err != nil {
			return err
		}
	}

	if _, err := t.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to transcript %s: %w", t.path, err)
	}
	return nil
}

func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func (t *Transcript) open() error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	t.file = f
	return nil
}
