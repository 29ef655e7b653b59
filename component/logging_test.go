package component

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_NilConnection(t *testing.T) {
	// Publishing disabled, local logging still works, nothing panics.
	cl := NewLogger("gateway", nil, slog.Default())
	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e", assert.AnError)
}

func TestLogger_NilSlog(t *testing.T) {
	cl := NewLogger("gateway", nil, nil)
	cl.Info("no sinks at all")
}

func TestLogEntry_JSONShape(t *testing.T) {
	entry := LogEntry{
		Timestamp: "2026-01-02T03:04:05Z",
		Level:     LogLevelError,
		Component: "gateway",
		Message:   "publish failed",
		Detail:    "connection refused",
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ERROR", decoded["level"])
	assert.Equal(t, "gateway", decoded["component"])
	assert.Equal(t, "connection refused", decoded["detail"])

	// Detail is omitted when empty.
	entry.Detail = ""
	data, err = json.Marshal(entry)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "detail")
}
