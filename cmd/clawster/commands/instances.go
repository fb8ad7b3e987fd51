package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInstancesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List gateway instances known to the local registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			instances, err := store.ListInstances(ctx)
			if err != nil {
				return fmt.Errorf("failed to list instances: %w", err)
			}

			if jsonOutput {
				return printJSON(instances)
			}
			if len(instances) == 0 {
				fmt.Println("no instances recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROFILE\tTARGET\tSTATE\tENDPOINT\tVERSION\tUPDATED")
			for _, inst := range instances {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					inst.Profile, inst.TargetKind, inst.State, inst.Endpoint,
					inst.Version, inst.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}
