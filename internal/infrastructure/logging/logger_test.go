package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/latch-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json to stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text to stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"empty config", config.LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := New(tt.cfg, "1.0.0"); logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDefaultFieldsOnEveryLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, "2.3.4", &buf)

	logger.Info("door unlocked", "source", "api")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log line: %v", err)
	}

	if entry["service"] != "latch" {
		t.Errorf("service = %v, want latch", entry["service"])
	}
	if entry["version"] != "2.3.4" {
		t.Errorf("version = %v, want 2.3.4", entry["version"])
	}
	if entry["msg"] != "door unlocked" {
		t.Errorf("msg = %v, want 'door unlocked'", entry["msg"])
	}
	if entry["source"] != "api" {
		t.Errorf("source = %v, want api", entry["source"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{
		Level:  "warn",
		Format: "json",
	}, "test", &buf)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Error("expected debug and info lines to be filtered at warn level")
	}
	if !strings.Contains(output, "kept") {
		t.Error("expected warn line in output")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "text",
	}, "test", &buf)

	logger.Info("hello")

	output := buf.String()
	if strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Error("expected text output, got JSON")
	}
	if !strings.Contains(output, "msg=hello") {
		t.Errorf("expected text key=value output, got %q", output)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, "test", &buf)

	child := logger.With("component", "relay")
	if child == logger {
		t.Fatal("expected child logger to be a new instance")
	}

	child.Info("connected")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log line: %v", err)
	}
	if entry["component"] != "relay" {
		t.Errorf("component = %v, want relay", entry["component"])
	}
}

func TestDefault(t *testing.T) {
	if logger := Default(); logger == nil {
		t.Fatal("expected non-nil default logger")
	}
}
