package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RunIDKey is the context key for the ingestion run ID
	RunIDKey ContextKey = "run_id"
	// FileKey is the context key for the file being ingested
	FileKey ContextKey = "file"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	File       string // rotated log file; empty disables file output
	MaxSizeMB  int
	MaxBackups int
	Console    bool
}

// New builds a logger from cfg. The returned closer releases the log file.
func New(cfg *Config) (*slog.Logger, io.Closer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.File), 0755)
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		writers = append(writers, rotating)
		closer = rotating
	}
	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	out := io.MultiWriter(writers...)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer
}

// Init initializes the global slog logger with the given configuration
func Init(cfg *Config) io.Closer {
	l, closer := New(cfg)
	slog.SetDefault(l)
	return closer
}

// WithContext returns a logger with context values extracted
func WithContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base
	if logger == nil {
		logger = slog.Default()
	}

	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		logger = logger.With("run_id", runID)
	}
	if file, ok := ctx.Value(FileKey).(string); ok && file != "" {
		logger = logger.With("file", file)
	}

	return logger
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
