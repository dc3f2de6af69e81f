package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaforge/internal/config"
	"mediaforge/internal/logging"
	"mediaforge/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "mediaforge.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "daemon started") {
		t.Fatalf("expected message in log file, got %q", data)
	}
}

func TestConsoleLoggerIncludesSubjectAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	noColor := false
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
		Color:       &noColor,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithWorker(context.Background(), 2)
	ctx = services.WithJobID(ctx, "abc-123")
	ctx = services.WithKind(ctx, "trim")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "worker"))
	log.Info("job completed", logging.Int64("produced_asset_id", 7), logging.String("note", "two words"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{
		"INFO [worker]",
		"Worker 2 · Job abc-123 (trim)",
		"job completed",
		"produced_asset_id=7",
		`note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no ANSI codes when colour disabled, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no source location at info level, got %q", line)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("probing output")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected source location in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesStableKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRequestID(context.Background(), "req-1")
	logging.WithContext(ctx, logger).Warn("engine slow", logging.Error(errors.New("boom")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry[logging.FieldCorrelationID] != "req-1" {
		t.Fatalf("expected correlation id, got %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error text, got %v", entry["error"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.WarnWithContext(logger, "ignored", "test_event")
	logging.WarnWithContext(nil, "ignored", "test_event")
}
