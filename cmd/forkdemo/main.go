package main

import (
	"log/slog"
	"os"

	"syscall-demos/internal/config"
	"syscall-demos/internal/forkdemo"
)

func main() {
	cfg := config.Parse()

	r := &forkdemo.Runner{Config: cfg, Stdout: os.Stdout, Stderr: os.Stderr}
	if err := r.Run(); err != nil {
		slog.Error("Fork demo failed", "error", err)
		os.Exit(1)
	}
}
