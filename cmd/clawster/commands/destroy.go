package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDestroyCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down all backend resources for the gateway",
		Long: `Tear down every backend resource belonging to the gateway instance.

Teardown is best-effort and resilient to partial prior teardown: already
missing resources are skipped, and one failing deletion does not stop the
rest. Shared infrastructure used by other instances is retained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !yes {
				return fmt.Errorf("destroy removes all backend resources; re-run with --yes to confirm")
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			log.Info().
				Str("profile", rt.cfg.Profile).
				Str("target", string(rt.kind)).
				Msg("Destroying gateway")

			if err := rt.run(ctx, "destroy", func(ctx context.Context) error {
				return rt.target.Destroy(ctx)
			}); err != nil {
				return fmt.Errorf("destroy failed: %w", err)
			}

			if err := rt.store.DeleteInstance(ctx, rt.instanceID()); err != nil {
				log.Warn().Err(err).Msg("failed to remove instance record")
			}

			if !jsonOutput {
				fmt.Printf("destroyed %s on %s\n", rt.cfg.Profile, rt.kind)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm destruction")
	return cmd
}
