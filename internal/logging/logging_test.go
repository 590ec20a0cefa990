package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWithWriterTeesJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupWithWriter("warn", false, &buf)

	log.Info().Msg("Hidden")
	log.Warn().Str("path", "/songs/x").Msg("Song skipped")

	out := buf.String()
	if strings.Contains(out, "Hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"path":"/songs/x"`) || !strings.Contains(out, "Song skipped") {
		t.Errorf("expected JSON warn line, got %q", out)
	}
}
