package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// registry holds only the demo metrics, so textfiles stay small.
var registry = prometheus.NewRegistry()

var processesSpawned = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "procdemo_processes_spawned_total",
	Help: "Number of child processes created by duplication",
})

var pipeBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "procdemo_pipe_bytes_written_total",
	Help: "Bytes written into the pipe by the parent",
})

var pipeBytesRead = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "procdemo_pipe_bytes_read_total",
	Help: "Bytes read from the pipe by the child",
})

var shortReads = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "procdemo_pipe_short_reads_total",
	Help: "Reads that returned fewer bytes than the message length",
})

func init() {
	registry.MustRegister(processesSpawned)
	registry.MustRegister(pipeBytesWritten)
	registry.MustRegister(pipeBytesRead)
	registry.MustRegister(shortReads)
}

func IncrementProcessesSpawned() {
	processesSpawned.Inc()
}

func AddPipeBytesWritten(n int) {
	pipeBytesWritten.Add(float64(n))
}

func AddPipeBytesRead(n int) {
	pipeBytesRead.Add(float64(n))
}

func IncrementShortReads() {
	shortReads.Inc()
}

// WriteMetricsTextfile writes the demo metrics in the node_exporter textfile
// format to <dir>/<demo>-<role>.prom. Parent and child each write their own
// file. An empty dir disables it.
func WriteMetricsTextfile(dir, demo, role string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.prom", demo, role))
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return "", fmt.Errorf("write metrics textfile: %w", err)
	}
	return path, nil
}
