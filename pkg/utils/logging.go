package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/capadapt/capadapt/pkg/errors"
)

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string

	// Format is text or json.
	Format string

	// File, when set, receives the log instead of the fallback writer. It is
	// rotated according to Rotation.
	File     string
	Rotation RotationConfig

	// AddSource adds the calling file and line to every record.
	AddSource bool
}

// ParseLogLevel parses a case-insensitive level name
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Newf(errors.ErrCodeInvalidConfig, "invalid log level: %s", level).
			WithComponent("logging")
	}
}

// NewLogger builds a slog.Logger writing to cfg.File, or to fallback when no file is
// configured. The returned closer releases the file and is never nil.
func NewLogger(cfg LoggerConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = fallback
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if cfg.File != "" {
		rotation := cfg.Rotation
		rotation.Filename = cfg.File
		rotator, err := NewLogRotator(rotation)
		if err != nil {
			return nil, nil, err
		}
		out, closer = rotator, rotator
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, errors.Newf(errors.ErrCodeInvalidConfig, "invalid log format: %s", cfg.Format).
			WithComponent("logging")
	}

	return slog.New(handler).With("service", "capadapt"), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
