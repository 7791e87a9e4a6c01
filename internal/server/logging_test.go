package server

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestConfigureLogging(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	if err := configureLogging(&buf, "warn", "json"); err != nil {
		t.Fatalf("configureLogging() error = %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("conn", "c1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, `"conn":"c1"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}

	buf.Reset()
	if err := configureLogging(&buf, "", "console"); err != nil {
		t.Fatalf("configureLogging(console) error = %v", err)
	}
	log.Info().Msg("readable")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("console format produced JSON: %s", buf.String())
	}

	if err := configureLogging(&buf, "loud", "json"); err == nil {
		t.Error("configureLogging accepted an unknown level")
	}
}
