package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeusync/vrepclient/internal/core/observability/log"
	"github.com/zeusync/vrepclient/sdk/go/client"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the simulator as a JSON-RPC service over HTTP",
		Long: `serve keeps one simulator connection open and answers JSON-RPC 1.0
requests on /rpc (methods Simulator.Start, Simulator.Stop, Simulator.GetHandle,
Simulator.MoveObject, Simulator.CopyObject, Simulator.GetPose,
Simulator.LoadScene, Simulator.LoadPackageScene, Simulator.IsRunning).
GET /healthz reports the connection and run state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, cleanup, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := app.Logger.With(log.String("component", "serve"))

			app.Client.OnEvent(client.EventTypeDisconnected, func(e client.Event) {
				if e.Error != nil {
					logger.Error("Simulator bridge connection lost", log.Error(e.Error))
				}
			})

			if err = app.Server.Start(ctx); err != nil {
				return err
			}
			logger.Info("Serving simulator", log.String("addr", app.Server.Addr().String()))

			// keep the run state current for /healthz and IsRunning
			spinCtx, stopSpin := context.WithCancel(ctx)
			defer stopSpin()
			go func() { _ = app.Client.Spin(spinCtx) }()

			select {
			case <-ctx.Done():
			case err = <-app.Server.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := app.Server.Stop(shutdownCtx); stopErr != nil && err == nil {
				err = stopErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "address to listen on (default 127.0.0.1:8765)")
	return cmd
}
