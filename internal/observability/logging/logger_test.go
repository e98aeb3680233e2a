package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWriter_JSON(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWriter(Config{Level: "WARN", Format: "json", Service: "svc"}, &buf)

	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", zerolog.GlobalLevel())
	}

	l := WithConsultation("c-1")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["consultation_id"] != "c-1" || line["service"] != "svc" || line["message"] != "shown" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestInitWriter_InvalidLevel(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWriter(Config{Level: "loud"}, &buf)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", zerolog.GlobalLevel())
	}

	l := WithComponent("store")
	l.Info().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"component":"store"`)) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}
