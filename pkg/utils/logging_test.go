package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/capadapt/capadapt/pkg/errors"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" ERROR ", slog.LevelError, false},
		{"LOUD", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			if tt.wantErr && !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LoggerConfig{Level: "WARN"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "cache", "hot")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at WARN level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "cache=hot") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "service=capadapt") {
		t.Errorf("service attribute missing: %s", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(LoggerConfig{Level: "DEBUG", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("resolved", "family", "stats.CacheStatistics")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["msg"] != "resolved" || record["family"] != "stats.CacheStatistics" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNewLogger_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "capadapt.log")
	logger, closer, err := NewLogger(LoggerConfig{File: file}, nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content: %s", data)
	}
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	if _, _, err := NewLogger(LoggerConfig{Format: "xml"}, nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, _, err := NewLogger(LoggerConfig{Level: "LOUD"}, nil); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{256 * 1024 * 1024, "256.0 MB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
