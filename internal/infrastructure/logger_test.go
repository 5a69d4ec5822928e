package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"csvmail/internal/config"
)

func lastEntry(t *testing.T, content []byte) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("Failed to parse log JSON: %v", err)
	}
	return entry
}

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()
	defer slog.SetDefault(slog.Default())

	logFile := filepath.Join(t.TempDir(), "logs", "csvmail.log")
	cfg := config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Logger is nil")
	}
	if GetLogger() != logger {
		t.Error("GetLogger did not return the initialized logger")
	}

	logger.Info("test message", "key", "value")
	CloseLogFile()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	entry := lastEntry(t, content)
	if entry["msg"] != "test message" {
		t.Errorf("Expected msg='test message', got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("Expected key='value', got %v", entry["key"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("Expected level='INFO', got %v", entry["level"])
	}
	if _, ok := entry["source"]; !ok {
		t.Error("Expected source location in log entry")
	}
}

func TestInitializeLogger_BadPath(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Output:   "file",
		FilePath: filepath.Join(blocker, "nested", "app.log"),
	})
	if err == nil {
		t.Error("Expected error for unwritable log path")
	}
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug")

	ctx := WithTraceID(context.Background(), "test-trace-123")
	logger.InfoContext(ctx, "test with trace")

	entry := lastEntry(t, buf.Bytes())
	if entry["trace_id"] != "test-trace-123" {
		t.Errorf("Expected trace_id='test-trace-123', got %v", entry["trace_id"])
	}
}

func TestTraceIDFromRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info").With("component", "test")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	logger.InfoContext(ctx, "request scoped")

	entry := lastEntry(t, buf.Bytes())
	if entry["trace_id"] != "req-42" {
		t.Errorf("Expected trace_id='req-42', got %v", entry["trace_id"])
	}
	if entry["component"] != "test" {
		t.Errorf("Expected component='test', got %v", entry["component"])
	}

	// An explicit trace ID wins over the request ID.
	if got := GetTraceID(WithTraceID(ctx, "explicit")); got != "explicit" {
		t.Errorf("Expected explicit trace ID, got %q", got)
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		info    bool
		warning bool
	}{
		{level: "debug", debug: true, info: true, warning: true},
		{level: "info", info: true, warning: true},
		{level: "warn", warning: true},
		{level: "error"},
		{level: "unknown", info: true, warning: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)

			logger.Debug("debug")
			logger.Info("info")
			logger.Warn("warning")

			out := buf.String()
			check := func(msg string, want bool) {
				got := strings.Contains(out, `"msg":"`+msg+`"`)
				if got != want {
					t.Errorf("level %s: message %q logged=%v, want %v", tt.level, msg, got, want)
				}
			}
			check("debug", tt.debug)
			check("info", tt.info)
			check("warning", tt.warning)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" {
		t.Error("Expected empty trace ID on bare context")
	}

	ctx = EnsureTraceID(ctx)
	traceID := GetTraceID(ctx)
	if len(traceID) != 36 {
		t.Errorf("Expected UUID trace ID, got %q", traceID)
	}

	if got := GetTraceID(EnsureTraceID(ctx)); got != traceID {
		t.Errorf("EnsureTraceID replaced existing trace ID: %q != %q", got, traceID)
	}
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info")

	WithError(WithComponent(logger, "artifacts"), errors.New("disk full")).Error("write failed")
	entry := lastEntry(t, buf.Bytes())
	if entry["component"] != "artifacts" {
		t.Errorf("Expected component='artifacts', got %v", entry["component"])
	}
	if entry["error"] != "disk full" {
		t.Errorf("Expected error='disk full', got %v", entry["error"])
	}

	if WithError(logger, nil) != logger {
		t.Error("WithError(nil) should return the logger unchanged")
	}
}
