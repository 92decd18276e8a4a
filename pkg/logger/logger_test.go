package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.WithFields(map[string]interface{}{
		"ticker": "AAPL",
		"qty":    10,
	}).Info("order submitted")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "order submitted", record["message"])
	assert.Equal(t, "AAPL", record["ticker"])
	assert.Equal(t, float64(10), record["qty"])
	assert.Equal(t, "info", record["level"])
	assert.Contains(t, record, "time")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden too")
	assert.Zero(t, buf.Len())

	log.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestParseLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "not-a-level")

	// Unknown levels fall back to info.
	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	log.Info("visible")
	assert.NotZero(t, buf.Len())
}
