package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
)

// clearEnv unsets the overrides for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBridgeURL, EnvNamespace, EnvCallTimeout, EnvLogLevel, EnvLogFile, EnvListen} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/vrep", cfg.Simulator.Namespace)
	assert.Equal(t, 1, cfg.Simulator.InfoQueueLength)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel())
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "vrep.yaml", `
bridge:
  url: ws://sim-host:9090
  ping_interval: 2s
simulator:
  namespace: /sim
  call_timeout: 1m30s
  info_queue_length: 4
packages:
  paths: [/opt/ros/pkgs]
  overrides:
    scenes: /data/scenes
log:
  level: debug
  encoding: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://sim-host:9090", cfg.Bridge.URL)
	assert.Equal(t, 2*time.Second, cfg.Bridge.PingInterval)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Bridge.WriteTimeout)
	assert.Equal(t, "/sim", cfg.Simulator.Namespace)
	assert.Equal(t, 90*time.Second, cfg.Simulator.CallTimeout)
	assert.Equal(t, 4, cfg.Simulator.InfoQueueLength)
	assert.Equal(t, []string{"/opt/ros/pkgs"}, cfg.Packages.Paths)
	assert.Equal(t, map[string]string{"scenes": "/data/scenes"}, cfg.Packages.Overrides)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "vrep.yaml", "bridge:\n  adress: ws://typo:9090\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "vrep.yaml", "simulator:\n  namespace: /from-file\n")
	t.Setenv(EnvNamespace, "/from-env")
	t.Setenv(EnvCallTimeout, "2.5")
	t.Setenv(EnvBridgeURL, "wss://secure:443")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.Simulator.Namespace)
	assert.Equal(t, 2500*time.Millisecond, cfg.Simulator.CallTimeout)
	assert.Equal(t, "wss://secure:443", cfg.Bridge.URL)
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "VREP_LOG_LEVEL=warn\nVREP_LISTEN=0.0.0.0:9999\n")
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvLogLevel)
		_ = os.Unsetenv(EnvListen)
	})

	cfg, err := Load("", envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, log.LevelWarn, cfg.LogLevel())
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
}

func TestApplyEnvBadTimeout(t *testing.T) {
	cfg := Default()
	lookup := func(key string) (string, bool) {
		if key == EnvCallTimeout {
			return "soon", true
		}
		return "", false
	}
	assert.ErrorIs(t, cfg.ApplyEnv(lookup), ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http url", func(c *Config) { c.Bridge.URL = "http://localhost:9090" }},
		{"no host", func(c *Config) { c.Bridge.URL = "ws://" }},
		{"negative timeout", func(c *Config) { c.Simulator.CallTimeout = -time.Second }},
		{"empty queue", func(c *Config) { c.Simulator.InfoQueueLength = 0 }},
		{"no info topic", func(c *Config) { c.Simulator.InfoTopic = "" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad encoding", func(c *Config) { c.Log.Encoding = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
