package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "json", Out: &buf}, "envwatch")

	logger.Info().Msg("dropped")
	logger.Warn().Str("station", "s1").Msg("kept")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "kept" || entry["service"] != "envwatch" || entry["station"] != "s1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "loud", Out: &buf}, "")

	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}
	logger.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info should be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"":      "info",
		"DEBUG": "debug",
		"error": "error",
		"loud":  "info",
	}
	for raw, want := range cases {
		if got := parseLevel(raw).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestLogWriterOutput(t *testing.T) {
	if w := logWriter(Config{Output: "stderr"}); w != os.Stderr {
		t.Fatalf("expected stderr, got %T", w)
	}
	if w := logWriter(Config{}); w != os.Stdout {
		t.Fatalf("expected stdout by default, got %T", w)
	}
	if _, ok := logWriter(Config{Format: "console"}).(zerolog.ConsoleWriter); !ok {
		t.Fatal("console format should use the console writer")
	}
}
