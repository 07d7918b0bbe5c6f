package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, err := New(LevelInfo, logPath, "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message")
	logger.Debug("should not appear")
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	contentStr := string(content)

	if !strings.Contains(contentStr, "[INFO] [test] test message") {
		t.Errorf("Log file missing info message, got: %s", contentStr)
	}
	if strings.Contains(contentStr, "should not appear") {
		t.Errorf("Log file contains debug message when level is INFO")
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelInfo, &buf, "parent")

	logger.WithPrefix("child").Info("test message")

	if !strings.Contains(buf.String(), "[parent:child] test message") {
		t.Errorf("missing combined prefix, got: %s", buf.String())
	}
}

func TestLoggerDisabled(t *testing.T) {
	logger, err := New(LevelNone, "", "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.Enabled(LevelError) {
		t.Error("disabled logger reports enabled")
	}
	logger.Error("error")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(LevelInfo, &buf, "")

	logger.Debug("debug1")
	logger.SetLevel(LevelDebug)
	logger.Debug("debug2")

	if strings.Contains(buf.String(), "debug1") {
		t.Errorf("debug1 should not appear (level was INFO)")
	}
	if !strings.Contains(buf.String(), "debug2") {
		t.Errorf("debug2 should appear (level changed to DEBUG)")
	}
}

func TestSetLevelReachesChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(LevelInfo, &buf, "")
	child := root.WithPrefix("validator")

	root.SetLevel(LevelDebug)
	child.Debug("rejected submission")
	if !strings.Contains(buf.String(), "[DEBUG] [validator] rejected submission") {
		t.Errorf("child did not follow parent level, got: %s", buf.String())
	}

	buf.Reset()
	child.SetLevel(LevelError)
	root.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("parent did not follow child level, got: %s", buf.String())
	}
	if root.GetLevel() != LevelError {
		t.Errorf("expected ERROR, got %s", root.GetLevel())
	}
}

func TestCloseDisablesFileLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := New(LevelInfo, logPath, "")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	logger.Info("after close")
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestGlobalLogger(t *testing.T) {
	if Global() == nil {
		t.Fatal("Global() returned nil")
	}

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
}

func TestSlogBridge(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf, "http")

	slog.New(NewSlogHandler(l)).WithGroup("req").Warn("slow", "ms", 12)
	NewStdLogger(l, slog.LevelError).Print("tls handshake error\n")

	out := buf.String()
	if !strings.Contains(out, "[WARN] [http] slow req.ms=12") {
		t.Errorf("unexpected slog output: %s", out)
	}
	if !strings.Contains(out, "[ERROR] [http] tls handshake error") {
		t.Errorf("unexpected std logger output: %s", out)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("abc-123"))
	if a != Fingerprint([]byte("abc-123")) {
		t.Error("fingerprint is not stable")
	}
	if a == Fingerprint([]byte("abc-124")) {
		t.Error("distinct inputs share a fingerprint")
	}
	if strings.Contains(a, "abc") || len(a) != 16 {
		t.Errorf("unexpected fingerprint %q", a)
	}
	if Fingerprint(nil) != "-" {
		t.Error("empty input should render as -")
	}
}
