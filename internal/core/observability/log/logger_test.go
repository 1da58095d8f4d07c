package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected Level
		ok       bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.expected, lvl)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOptions(Options{Level: LevelWarn, Output: buf})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestSetLevelAppliesToChildren(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOptions(Options{Level: LevelError, Output: buf})
	child := logger.With(String("component", "test"))

	child.Info("hidden")
	logger.SetLevel(LevelDebug)
	child.Info("visible")

	assert.Equal(t, LevelDebug, logger.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestJSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOptions(Options{Level: LevelDebug, Output: buf})

	logger.Info("call finished",
		String("service", "/vrep/simRosStartSimulation"),
		Int("handle", 7),
		Int32("result", -1),
		Bool("running", true),
		Duration("took", 15*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "call finished", entry["msg"])
	assert.Equal(t, "/vrep/simRosStartSimulation", entry["service"])
	assert.EqualValues(t, 7, entry["handle"])
	assert.EqualValues(t, -1, entry["result"])
	assert.Equal(t, true, entry["running"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNilErrorFieldIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))

	logger.Warn("no error", Error(nil))

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestConsoleEncoding(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOptions(Options{Level: LevelInfo, Encoding: "console", Output: buf})

	logger.Info("plain text", String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "plain text")
	assert.False(t, strings.HasPrefix(output, "{"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vrep.log")
	logger := NewWithOptions(Options{Level: LevelInfo, Output: &bytes.Buffer{}, File: path, MaxSizeMB: 1})

	logger.Info("persisted")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted")
}

func TestNewFromZapDetectsLevel(t *testing.T) {
	core, _ := observer.New(zapcore.WarnLevel)
	logger := NewFromZap(zap.New(core))
	assert.Equal(t, LevelWarn, logger.GetLevel())
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped", String("k", "v"))
	assert.NoError(t, logger.Sync())
}
