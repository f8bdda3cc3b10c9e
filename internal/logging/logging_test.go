package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"filmmigrate/internal/config"
)

func TestNewJSONIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Log{Level: "info", Format: "json"}, &buf)
	logger.Named("destination").Warn("batch conflicts with existing rows", "table", "genre", "batch", 2)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug line to be filtered, got %d lines: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["@module"] != "filmmigrate.destination" || entry["table"] != "genre" || entry["@level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Log{Level: "bogus", Format: "text"}, &buf)
	logger.Debug("not shown")
	logger.Info("run finished", "status", "ok")
	out := buf.String()
	if strings.Contains(out, "not shown") || !strings.Contains(out, "run finished") || !strings.Contains(out, "status=ok") {
		t.Fatalf("unexpected output %q", out)
	}
}
