package server

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	logger := log.Logger
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})
}

func TestConfigureLoggingJSON(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	require.NoError(t, ConfigureLogging("WARN", "json", &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("room", "lobby").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "one JSON line expected, got %q", buf.String())
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "lobby", entry["room"])
	assert.Equal(t, "shown", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestConfigureLoggingConsole(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	require.NoError(t, ConfigureLogging("", "console", &buf))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("hello console")
	assert.Contains(t, buf.String(), "hello console")
}

func TestConfigureLoggingRejectsBadInput(t *testing.T) {
	restoreLogging(t)

	require.Error(t, ConfigureLogging("loud", "json", nil))
	require.Error(t, ConfigureLogging("info", "xml", nil))
}
