package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "debug", Format: FormatJSON})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	componentLogger := Component(logger, "orchestrator")
	componentLogger.Info().Str("season_id", "s-1").Msg("phase advanced")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["component"] != "orchestrator" {
		t.Fatalf("component = %v, want orchestrator", line["component"])
	}
	if line["season_id"] != "s-1" {
		t.Fatalf("season_id = %v, want s-1", line["season_id"])
	}
	if line["message"] != "phase advanced" {
		t.Fatalf("message = %v", line["message"])
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "warn"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestNewRejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Config{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New(&bytes.Buffer{}, Config{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}
