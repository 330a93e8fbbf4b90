package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Backend: "zerolog", Level: "debug", Format: "json"}, "test", &buf)
	l.Debugw("plan", map[string]any{"contact": 7})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, "plan", line["message"])
	assert.EqualValues(t, 7, line["contact"])
}

func TestZerologLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Backend: "zerolog", Level: "warn", Format: "json"}, "test", &buf)
	l.Infof("hidden")
	assert.Zero(t, buf.Len())
	l.Warnf("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Backend: "logrus", Level: "info", Format: "json"}, "batch", &buf)
	l.Debugf("hidden")
	l.Errorf("failed %s", "x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "batch", line["component"])
	assert.Equal(t, "failed x", line["msg"])
	assert.Equal(t, "error", line["level"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(Config{Level: "info", Format: "console"}, "test", &buf)
	l.Infof("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Backend: "slog", Level: "info", Format: "json"}.Validate())
	assert.Error(t, Config{Backend: "zerolog", Level: "loud", Format: "json"}.Validate())
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debugf("x")
	l.Debugw("x", nil)
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
}
