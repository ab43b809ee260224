package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultBufferSize is the capacity of the reader's message buffer.
	DefaultBufferSize = 100
	// MinBufferSize leaves room for at least one byte of payload.
	MinBufferSize = 2

	envPrefix = "procdemo"
)

type Config struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"WARN"`
	Transcript   string `envconfig:"TRANSCRIPT"`
	MetricsDir   string `envconfig:"METRICS_DIR"`
	BufferSize   int    `envconfig:"BUFFER_SIZE" default:"100"`
	ReadUntilEOF bool   `envconfig:"READ_UNTIL_EOF"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:   "WARN",
		BufferSize: DefaultBufferSize,
	}
}

// Parse loads the configuration from the environment and os.Args and installs
// the default logger. It exits the process on invalid input.
func Parse() Config {
	cfg, err := Load(os.Args[0], os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		InitLogger(os.Stderr, "ERROR")
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	InitLogger(os.Stderr, cfg.LogLevel)
	return cfg
}

// Load reads PROCDEMO_* environment variables and then applies flags from args
// on top. Usage output goes to usageOut.
func Load(name string, args []string, usageOut io.Writer) (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(usageOut)

	transcriptPtr := fs.String("transcript", "", "File to append a JSON transcript of both processes' output")
	transcriptShorthandPtr := fs.String("t", "", "Shorthand for --transcript")

	metricsDirPtr := fs.String("metrics-dir", "", "Directory for Prometheus textfile metrics (one file per process)")
	metricsDirShorthandPtr := fs.String("m", "", "Shorthand for --metrics-dir")

	bufferSizePtr := fs.Int("buffer-size", 0, "Capacity of the reader's message buffer (default 100)")
	bufferSizeShorthandPtr := fs.Int("b", 0, "Shorthand for --buffer-size")

	readUntilEOFPtr := fs.Bool("read-until-eof", false, "Keep reading until the writer closes instead of a single read")
	readUntilEOFShorthandPtr := fs.Bool("e", false, "Shorthand for --read-until-eof")

	fs.Usage = func() {
		fmt.Fprintf(usageOut, "Usage: %s [options]\n\n", name)
		fmt.Fprintln(usageOut, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.Transcript = coalesceStr(*transcriptShorthandPtr, *transcriptPtr, cfg.Transcript)
	cfg.MetricsDir = coalesceStr(*metricsDirShorthandPtr, *metricsDirPtr, cfg.MetricsDir)
	cfg.BufferSize = coalesce(*bufferSizeShorthandPtr, *bufferSizePtr, cfg.BufferSize)
	cfg.ReadUntilEOF = cfg.ReadUntilEOF || *readUntilEOFPtr || *readUntilEOFShorthandPtr

	if cfg.BufferSize < MinBufferSize {
		return Config{}, fmt.Errorf("buffer size %d is below the minimum of %d", cfg.BufferSize, MinBufferSize)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("unknown log level %q", s)
}

// InitLogger installs a JSON logger writing to w as the slog default.
func InitLogger(w io.Writer, level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func coalesce(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func coalesceStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
