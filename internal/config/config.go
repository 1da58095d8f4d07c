// Package config loads vrepctl settings from a YAML file, an optional .env
// file and VREP_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
)

// Environment overrides.
const (
	EnvBridgeURL   = "VREP_BRIDGE_URL"
	EnvNamespace   = "VREP_NAMESPACE"
	EnvCallTimeout = "VREP_CALL_TIMEOUT"
	EnvLogLevel    = "VREP_LOG_LEVEL"
	EnvLogFile     = "VREP_LOG_FILE"
	EnvListen      = "VREP_LISTEN"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Packages  PackagesConfig  `yaml:"packages"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

// BridgeConfig describes the rosbridge websocket endpoint.
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
}

// SimulatorConfig describes where the simulator's services live.
type SimulatorConfig struct {
	Namespace       string        `yaml:"namespace"`
	InfoTopic       string        `yaml:"info_topic"`
	InfoQueueLength int           `yaml:"info_queue_length"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
}

// PackagesConfig adds search roots in front of ROS_PACKAGE_PATH and pins
// package names to directories.
type PackagesConfig struct {
	Paths     []string          `yaml:"paths"`
	Overrides map[string]string `yaml:"overrides"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Encoding   string `yaml:"encoding"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			URL:              "ws://localhost:9090",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			PingInterval:     15 * time.Second,
			PongTimeout:      10 * time.Second,
			MaxMessageSize:   16 * 1024 * 1024,
		},
		Simulator: SimulatorConfig{
			Namespace:       "/vrep",
			InfoTopic:       "/vrep/info",
			InfoQueueLength: 1,
			CallTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Encoding:   "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// Load builds a configuration from the defaults, the YAML file at path (if
// path is not empty), the given .env files and the environment. Missing
// .env files are ignored. Unknown YAML keys are rejected.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err = Decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(envFiles...); err != nil {
		return cfg, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Decode strictly parses YAML over the values already in cfg.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads .env files without overriding variables that are
// already set.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := godotenv.Load(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBridgeURL); ok && v != "" {
		c.Bridge.URL = v
	}
	if v, ok := lookup(EnvNamespace); ok && v != "" {
		c.Simulator.Namespace = v
	}
	if v, ok := lookup(EnvCallTimeout); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvCallTimeout, v, err)
		}
		c.Simulator.CallTimeout = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Log.File = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	return nil
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Bridge.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: bridge url %q must be ws:// or wss://", ErrInvalidConfig, c.Bridge.URL)
	}
	if c.Simulator.CallTimeout < 0 {
		return fmt.Errorf("%w: negative call timeout", ErrInvalidConfig)
	}
	if c.Simulator.InfoQueueLength < 1 {
		return fmt.Errorf("%w: info queue length must be at least 1", ErrInvalidConfig)
	}
	if c.Simulator.InfoTopic == "" {
		return fmt.Errorf("%w: info topic is empty", ErrInvalidConfig)
	}
	if c.Bridge.MaxMessageSize < 0 {
		return fmt.Errorf("%w: negative max message size", ErrInvalidConfig)
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: unknown log encoding %q", ErrInvalidConfig, c.Log.Encoding)
	}
	return nil
}

// LogLevel returns the parsed log level, falling back to info.
func (c *Config) LogLevel() log.Level {
	if level, ok := log.ParseLevel(c.Log.Level); ok {
		return level
	}
	return log.LevelInfo
}

// parseDuration accepts Go durations and bare numbers of seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
