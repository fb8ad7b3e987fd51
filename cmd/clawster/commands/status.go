package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawster/clawster/pkg/target"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the observed gateway state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			status := rt.target.GetStatus(ctx)
			rt.updateState(ctx, string(status.State))

			if jsonOutput {
				return printJSON(status)
			}
			fmt.Printf("profile:  %s\n", rt.cfg.Profile)
			fmt.Printf("target:   %s\n", rt.kind)
			fmt.Printf("state:    %s\n", status.State)
			if status.GatewayPort > 0 {
				fmt.Printf("port:     %d\n", status.GatewayPort)
			}
			if status.State == target.StateError && status.Error != "" {
				fmt.Printf("error:    %s\n", status.Error)
			}
			return nil
		},
	}
}
