package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeusync/vrepclient/internal/config"
	"github.com/zeusync/vrepclient/internal/injector"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	envFile    string
	url        string
	namespace  string
	logLevel   string
	timeout    time.Duration

	// listen is set by serve only.
	listen string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "vrepctl",
		Short: "Drive a V-REP / CoppeliaSim simulator through rosbridge",
		Long: `vrepctl talks to the simulator's ROS plugin through a rosbridge websocket.

Settings come from an optional YAML file (--config), a .env file, VREP_*
environment variables and finally the flags below, later sources winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if it exists")
	flags.StringVar(&opts.url, "url", "", "rosbridge websocket URL (default ws://localhost:9090)")
	flags.StringVar(&opts.namespace, "namespace", "", "namespace of the simulator services (default /vrep)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-call timeout (default 30s)")

	root.AddCommand(
		newStartCmd(opts),
		newStopCmd(opts),
		newHandleCmd(opts),
		newMoveCmd(opts),
		newCopyCmd(opts),
		newPoseCmd(opts),
		newLoadCmd(opts),
		newLoadPackageCmd(opts),
		newStatusCmd(opts),
		newServeCmd(opts),
	)

	return root
}

// loadConfig resolves the configuration from every source.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return cfg, err
	}

	if o.url != "" {
		cfg.Bridge.URL = o.url
	}
	if o.namespace != "" {
		cfg.Simulator.Namespace = o.namespace
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.timeout > 0 {
		cfg.Simulator.CallTimeout = o.timeout
	}
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}
	return cfg, cfg.Validate()
}

// connect builds the application and connects its client. The returned
// cleanup closes everything.
func (o *globalOptions) connect(ctx context.Context) (*injector.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err = app.Client.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return app, cleanup, nil
}
