package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cadre-oss/statecast/internal/config"
)

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, slog.LevelInfo, "json")
	l.Info("Transition accepted", "state", "processing", "seq", 3)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "Transition accepted" || rec["state"] != "processing" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, slog.LevelWarn, "text")
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, slog.LevelInfo, "text").With("hub")
	l.Info("Subscribed")
	if !strings.Contains(buf.String(), "component=hub") {
		t.Errorf("expected component field, got %q", buf.String())
	}
}

func TestLogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "statecast.log")
	l, err := NewLoggerFromConfig(config.LoggingConfig{Level: "info", Format: "json", File: path}, false)
	if err != nil {
		t.Fatalf("NewLoggerFromConfig() error = %v", err)
	}
	l.Info("written to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Errorf("log file content = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFromConfig_VerboseForcesDebug(t *testing.T) {
	l, err := NewLoggerFromConfig(config.LoggingConfig{Level: "error"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if l.level != slog.LevelDebug {
		t.Errorf("level = %v, want debug", l.level)
	}
}
