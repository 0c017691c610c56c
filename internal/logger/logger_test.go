package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLoggerInitialization tests that logger can be initialized with different log levels
func TestLoggerInitialization(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{name: "Valid DEBUG level", level: "DEBUG", want: logrus.DebugLevel},
		{name: "Valid INFO level", level: "INFO", want: logrus.InfoLevel},
		{name: "Valid WARN level", level: "WARN", want: logrus.WarnLevel},
		{name: "Valid ERROR level", level: "ERROR", want: logrus.ErrorLevel},
		{name: "Invalid level defaults to INFO", level: "INVALID", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.level)
			if GetLogger().Level != tt.want {
				t.Errorf("Expected level %v, got %v", tt.want, GetLogger().Level)
			}
		})
	}
}

// TestStructuredOutput checks that entries are JSON with the supplied fields
func TestStructuredOutput(t *testing.T) {
	Init("DEBUG")
	var buf bytes.Buffer
	SetOutput(&buf)

	WithComponent("supervisor").WithFields(logrus.Fields{
		"server_id": "srv-1",
		"pid":       42,
	}).Info("Process started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}

	if entry["component"] != "supervisor" {
		t.Errorf("Expected component field, got %v", entry["component"])
	}
	if entry["server_id"] != "srv-1" {
		t.Errorf("Expected server_id field, got %v", entry["server_id"])
	}
	if entry["msg"] != "Process started" {
		t.Errorf("Expected message, got %v", entry["msg"])
	}
}

// TestLevelFiltering checks that entries below the configured level are dropped
func TestLevelFiltering(t *testing.T) {
	Init("WARN")
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("hidden")
	Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected no output below WARN, got %q", buf.String())
	}

	Warnf("shown %s", "warning")
	if buf.Len() == 0 {
		t.Errorf("Expected WARN entry to be written")
	}
}

// TestTextFormat checks the human-readable development format
func TestTextFormat(t *testing.T) {
	InitWithFormat("INFO", FormatText)
	defer Init("INFO")
	var buf bytes.Buffer
	SetOutput(&buf)

	WithComponent("session").Info("Session opened")

	out := buf.String()
	if !strings.Contains(out, "component=session") || !strings.Contains(out, `msg="Session opened"`) {
		t.Errorf("Expected text formatted entry, got %q", out)
	}
}
