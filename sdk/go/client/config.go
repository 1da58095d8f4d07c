package client

import (
	"time"

	"github.com/zeusync/vrepclient/internal/core/events/bus"
	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/protocol/rosbridge"
	"github.com/zeusync/vrepclient/internal/core/vrep"
)

// Config holds configuration for the client
type Config struct {
	// URL of the rosbridge websocket, e.g. ws://localhost:9090.
	URL            string
	ConnectTimeout time.Duration
	Bridge         rosbridge.Config

	// Namespace the simulator services are advertised under.
	Namespace       string
	InfoTopic       string
	InfoQueueLength int
	// CallTimeout bounds calls whose context carries no deadline. Zero
	// means calls wait as long as the context allows.
	CallTimeout time.Duration

	// DefaultPackage is used by LoadPackageScene when no package is named.
	DefaultPackage   string
	PackagePaths     []string
	PackageOverrides map[string]string

	LogLevel log.Level
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		URL:             "ws://localhost:9090",
		ConnectTimeout:  10 * time.Second,
		Bridge:          rosbridge.DefaultConfig(),
		Namespace:       vrep.DefaultNamespace,
		InfoTopic:       vrep.InfoTopic,
		InfoQueueLength: 1,
		CallTimeout:     30 * time.Second,
		DefaultPackage:  "tapir",
		LogLevel:        log.LevelInfo,
	}
}

// PackageResolver maps a ROS package name to its directory.
type PackageResolver interface {
	Find(name string) (string, error)
}

// Option customises a Client.
type Option func(*Client)

// WithLogger replaces the logger built from Config.LogLevel.
func WithLogger(logger log.Log) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPackageResolver replaces the ROS_PACKAGE_PATH resolver.
func WithPackageResolver(r PackageResolver) Option {
	return func(c *Client) {
		c.packages = r
	}
}

// WithEventBus publishes client events on an existing bus.
func WithEventBus(b bus.EventBus) Option {
	return func(c *Client) {
		if b != nil {
			c.events = b
		}
	}
}
