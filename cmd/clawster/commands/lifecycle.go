package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(cmd.Context(), "start", func(ctx context.Context, rt *runtime) error {
				return rt.target.Start(ctx)
			})
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the gateway without releasing resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(cmd.Context(), "stop", func(ctx context.Context, rt *runtime) error {
				return rt.target.Stop(ctx)
			})
		},
	}
}

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycle(cmd.Context(), "restart", func(ctx context.Context, rt *runtime) error {
				return rt.target.Restart(ctx)
			})
		},
	}
}

// runLifecycle wires the shared runtime around one single-step operation.
func runLifecycle(ctx context.Context, operation string, fn func(context.Context, *runtime) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	log.Info().
		Str("profile", rt.cfg.Profile).
		Str("target", string(rt.kind)).
		Str("operation", operation).
		Msg("Running lifecycle operation")

	if err := rt.run(ctx, operation, func(ctx context.Context) error {
		return fn(ctx, rt)
	}); err != nil {
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	// Record the resulting state so `clawster instances` stays truthful.
	status := rt.target.GetStatus(ctx)
	rt.updateState(ctx, string(status.State))

	if !jsonOutput {
		fmt.Printf("%s: %s\n", operation, status.State)
	}
	return nil
}
