package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newEndpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Resolve the public gateway endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			endpoint, err := rt.target.GetEndpoint(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve endpoint: %w", err)
			}

			if inst, gerr := rt.store.GetInstance(ctx, rt.cfg.Profile, string(rt.kind)); gerr == nil {
				if uerr := rt.store.UpdateInstanceState(ctx, inst.ID, inst.State, endpoint.URL()); uerr != nil {
					log.Debug().Err(uerr).Msg("failed to record endpoint")
				}
			}

			if jsonOutput {
				return printJSON(endpoint)
			}
			fmt.Println(endpoint.URL())
			return nil
		},
	}
}
