package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, zerolog.WarnLevel)
	log.Info().Msg("hidden")
	log.Warn().Str("grid", "dem").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "dem") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "logx_test.go:") {
		t.Errorf("caller missing: %q", out)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if _, err := NewLoggerLevel("debug"); err != nil {
		t.Fatalf("debug: %v", err)
	}
	if _, err := NewLoggerLevel("chatty"); err == nil {
		t.Fatal("bad level accepted")
	}
}
