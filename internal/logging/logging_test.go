package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestVerbosity(t *testing.T) {
	assert.Equal(t, "info", Verbosity("info", 0, false))
	assert.Equal(t, "debug", Verbosity("info", 1, false))
	assert.Equal(t, "trace", Verbosity("info", 5, false))
	assert.Equal(t, "error", Verbosity("debug", 2, true))
}

func TestNew_JSONToBuffer(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Config{Level: "warn", Format: "auto"}, &buf)
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Str("pair", "case").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "case", entry["pair"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Level: "info", Format: "console", NoColor: true}, &buf)
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "INF")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spineprep.log")
	var buf bytes.Buffer
	logger, closer := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, &buf)
	logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestNewTestLogger(t *testing.T) {
	tl := NewTestLogger(t)
	tl.Debug().Msg("captured")
	assert.Contains(t, tl.Buffer.String(), "captured")
}
