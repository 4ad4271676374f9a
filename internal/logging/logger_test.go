package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	logger.Info("feed loaded", zap.Int("items", 3))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "feed loaded", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["items"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWithWriter_AutoFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Format: FormatAuto}, &buf)
	require.NoError(t, err)

	logger.Warn("x")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "non-terminal writer gets JSON: %s", buf.String())
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug", Format: FormatConsole}, &buf)
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNewWithWriter_InvalidConfig(t *testing.T) {
	_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log format")
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidLevel(""))
	assert.True(t, ValidLevel("WARN"))
	assert.False(t, ValidLevel("verbose"))
	assert.True(t, ValidFormat("console"))
	assert.False(t, ValidFormat("yaml"))
}
