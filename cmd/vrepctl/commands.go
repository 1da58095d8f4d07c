package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/vrepclient/internal/core/vrep"
	"github.com/zeusync/vrepclient/sdk/go/client"
)

// run connects, hands the client to fn and closes everything afterwards.
func run(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	app, cleanup, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, app.Client)
}

func newStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Start(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "simulation started")
				return nil
			})
		},
	}
}

func newStopCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Stop(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "simulation stopped")
				return nil
			})
		},
	}
}

func newHandleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handle <object-name>",
		Short: "Print the handle of a named object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				h, err := c.GetHandle(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h)
				return nil
			})
		},
	}
}

func newMoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <object-name|handle> <x> <y> <z>",
		Short: "Move an object to a world-frame position",
		Example: `  vrepctl move Rover 1.0 0.5 0
  vrepctl move 42 0 0 0.2`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, byHandle := parseHandle(args[0])
			pos, err := parsePoint(args[1:])
			if err != nil {
				return err
			}

			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if byHandle {
					err = c.MoveObject(ctx, handle, pos)
				} else {
					err = c.MoveObjectByName(ctx, args[0], pos)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %s to (%g, %g, %g)\n", args[0], pos.X, pos.Y, pos.Z)
				return nil
			})
		},
	}
}

func newCopyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <handle>",
		Short: "Duplicate an object and print the handle of the copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, ok := parseHandle(args[0])
			if !ok {
				return errors.Errorf("invalid handle %q", args[0])
			}
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				h, err := c.CopyObject(ctx, handle)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h)
				return nil
			})
		},
	}
}

func newPoseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pose <object-name|handle>",
		Short: "Print the world-frame pose of an object as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				handle, ok := parseHandle(args[0])
				if !ok {
					var err error
					if handle, err = c.GetHandle(ctx, args[0]); err != nil {
						return err
					}
				}
				pose, err := c.GetPose(ctx, handle)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(pose)
			})
		},
	}
}

func newLoadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <scene-file>",
		Short: "Load a scene file by path on the simulator host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.LoadScene(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "loaded", args[0])
				return nil
			})
		},
	}
}

func newLoadPackageCmd(opts *globalOptions) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "load-package <problem> <relative-path>",
		Short: "Load <package>/problems/<problem>/<relative-path>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				path, err := c.ScenePath(args[0], args[1], pkg)
				if err != nil {
					return err
				}
				if err = c.LoadScene(ctx, path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "loaded", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "ROS package holding the problems directory (default tapir)")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var (
		watch bool
		wait  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print whether the simulation is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client.Client) error {
				out := cmd.OutOrStdout()
				if !watch {
					waitForInfo(ctx, c, wait)
					fmt.Fprintln(out, stateName(c.IsRunning()))
					return nil
				}

				cancel := c.OnStateChange(func(running bool) {
					fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.RFC3339), stateName(running))
				})
				defer cancel()

				err := c.Spin(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print every state change until interrupted")
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "how long to wait for the first status message")
	return cmd
}

// waitForInfo applies info messages until one arrived or wait elapsed.
func waitForInfo(ctx context.Context, c *client.Client, wait time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		_, _ = c.SpinOnce()
		if _, ok := c.LastInfo(); ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func stateName(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

// parseHandle reports whether s is a numeric object handle.
func parseHandle(s string) (vrep.Handle, bool) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return vrep.InvalidHandle, false
	}
	return vrep.Handle(n), true
}

func parsePoint(args []string) (vrep.Point, error) {
	var xyz [3]float64
	if len(args) != len(xyz) {
		return vrep.Point{}, errors.Errorf("expected 3 coordinates, got %d", len(args))
	}
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return vrep.Point{}, errors.Errorf("invalid coordinate %q", a)
		}
		xyz[i] = v
	}
	return vrep.Point{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
