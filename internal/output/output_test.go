package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syscall-demos/internal/proc"
)

func TestTranscript_Disabled(t *testing.T) {
	tr := NewTranscript("")
	assert.NoError(t, tr.Write("ignored"))
	assert.NoError(t, tr.Close())
}

func TestTranscript_AppendsAcrossWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")

	first := NewTranscript(path)
	second := NewTranscript(path)
	require.NoError(t, first.Write(`{"n":1}`))
	require.NoError(t, second.Write(`{"n":2}`))
	require.NoError(t, first.Write(`{"n":3}`))
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n", string(data))
}

func TestTranscript_OpenError(t *testing.T) {
	tr := NewTranscript(filepath.Join(t.TempDir(), "missing", "run.jsonl"))
	assert.Error(t, tr.Write("x"))
}

func TestPrinter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	tr := NewTranscript(path)
	defer tr.Close()

	var out bytes.Buffer
	p := NewPrinter(&out, tr, proc.Identity{Role: proc.Parent, PID: 10, RunID: "r"})
	p.Println("Before duplication")
	p.WithIdentity(proc.Identity{Role: proc.Parent, PID: 10, RelatedPID: 11, RunID: "r"}).
		Printf("Parent process: PID = %d, Child PID = %d", 10, 11)

	assert.Equal(t, "Before duplication\nParent process: PID = 10, Child PID = 11\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "parent", second["role"])
	assert.EqualValues(t, 11, second["related_pid"])
}

func TestPrinter_NoTranscript(t *testing.T) {
	var out bytes.Buffer
	NewPrinter(&out, nil, proc.Identity{}).Println("hello")
	assert.Equal(t, "hello\n", out.String())
}

func TestWriteMetricsTextfile(t *testing.T) {
	path, err := WriteMetricsTextfile("", "forkdemo", "parent")
	require.NoError(t, err)
	assert.Empty(t, path)

	IncrementProcessesSpawned()
	AddPipeBytesWritten(30)

	dir := filepath.Join(t.TempDir(), "metrics")
	path, err = WriteMetricsTextfile(dir, "pipedemo", "parent")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pipedemo-parent.prom"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "procdemo_processes_spawned_total")
	assert.Contains(t, string(data), "procdemo_pipe_bytes_written_total")
	assert.Contains(t, string(data), "procdemo_pipe_short_reads_total 0")
}
