// Package report describes a single line of demo output as seen by the
// process that printed it.
package report

import (
	"encoding/json"
	"time"

	"syscall-demos/internal/proc"
)

type Line struct {
	Timestamp  int64  `json:"timestamp"`
	RunID      string `json:"run_id"`
	Role       string `json:"role"`
	PID        int    `json:"pid"`
	RelatedPID int    `json:"related_pid,omitempty"`
	Text       string `json:"text"`
}

// New stamps text with the identity of the printing process.
func New(id proc.Identity, text string) Line {
	return Line{
		Timestamp:  time.Now().UnixNano(),
		RunID:      id.RunID,
		Role:       id.Role.String(),
		PID:        id.PID,
		RelatedPID: id.RelatedPID,
		Text:       text,
	}
}

// JSON returns the transcript form. Marshalling a struct of strings and ints
// cannot fail.
func (l Line) JSON() string {
	b, _ := json.Marshal(l)
	return string(b)
}
