package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Output: &buf})
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l.Debug().Str("table", "products").Msg("query")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "products", line["table"])
	assert.Equal(t, "query", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Output: &buf})
	require.NoError(t, err)
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: "console", Output: &buf})
	require.NoError(t, err)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewErrors(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.ErrorContains(t, err, "invalid log level")

	_, err = New(Config{Format: "xml"})
	require.ErrorContains(t, err, "invalid log format")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DDB_LOG_LEVEL", "warn")
	t.Setenv("DDB_LOG_FORMAT", "")
	cfg := FromEnv(Config{Level: "debug", Format: "console"})
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
}
