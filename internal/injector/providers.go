package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/vrepclient/internal/config"
	"github.com/zeusync/vrepclient/internal/core/events/bus"
	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/internal/core/protocol/rosbridge"
	"github.com/zeusync/vrepclient/internal/core/rospack"
	"github.com/zeusync/vrepclient/internal/server"
	"github.com/zeusync/vrepclient/sdk/go/client"
)

// App is everything vrepctl needs, assembled from one configuration.
type App struct {
	Config config.Config
	Logger *log.Logger
	Events bus.EventBus
	Client *client.Client
	Server *server.Server
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideEventBus,
	ProvideResolver,
	ProvideClientConfig,
	ProvideClient,
	ProvideServerConfig,
	ProvideServer,
	wire.Bind(new(server.Simulator), new(*client.Client)),
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	logger := log.NewWithOptions(log.Options{
		Level:      cfg.LogLevel(),
		Encoding:   cfg.Log.Encoding,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	return logger, func() { _ = logger.Sync() }
}

// ProvideEventBus returns the bus client lifecycle and run-state events
// are published on.
func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideResolver(cfg config.Config, logger *log.Logger) *rospack.Resolver {
	return rospack.FromEnv(cfg.Packages.Paths,
		rospack.WithOverrides(cfg.Packages.Overrides),
		rospack.WithLogger(logger))
}

func ProvideClientConfig(cfg config.Config) client.Config {
	cc := client.DefaultConfig()
	cc.URL = cfg.Bridge.URL
	cc.Bridge = rosbridge.Config{
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
		WriteTimeout:     cfg.Bridge.WriteTimeout,
		PingInterval:     cfg.Bridge.PingInterval,
		PongTimeout:      cfg.Bridge.PongTimeout,
		MaxMessageSize:   cfg.Bridge.MaxMessageSize,
	}
	if cfg.Bridge.HandshakeTimeout > 0 {
		cc.ConnectTimeout = cfg.Bridge.HandshakeTimeout
	}
	cc.Namespace = cfg.Simulator.Namespace
	cc.InfoTopic = cfg.Simulator.InfoTopic
	cc.InfoQueueLength = cfg.Simulator.InfoQueueLength
	cc.CallTimeout = cfg.Simulator.CallTimeout
	cc.PackagePaths = cfg.Packages.Paths
	cc.PackageOverrides = cfg.Packages.Overrides
	cc.LogLevel = cfg.LogLevel()
	return cc
}

// ProvideClient returns an unconnected client. The cleanup closes it.
func ProvideClient(cc client.Config, logger *log.Logger, events bus.EventBus, resolver *rospack.Resolver) (*client.Client, func()) {
	c := client.New(cc,
		client.WithLogger(logger),
		client.WithEventBus(events),
		client.WithPackageResolver(resolver))
	return c, func() { _ = c.Close() }
}

func ProvideServerConfig(cfg config.Config) server.Config {
	sc := server.DefaultConfig()
	sc.ListenAddr = cfg.Server.Listen
	return sc
}

func ProvideServer(sc server.Config, sim server.Simulator, logger *log.Logger) (*server.Server, error) {
	return server.NewServer(sc, sim, logger)
}
