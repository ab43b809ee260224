package main

import (
	"log/slog"
	"os"

	"syscall-demos/internal/config"
	"syscall-demos/internal/pipedemo"
)

func main() {
	cfg := config.Parse()

	r := &pipedemo.Runner{Config: cfg, Stdout: os.Stdout, Stderr: os.Stderr}
	if err := r.Run(); err != nil {
		slog.Error("Pipe demo failed", "error", err)
		os.Exit(1)
	}
}
