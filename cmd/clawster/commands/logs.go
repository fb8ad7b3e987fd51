package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawster/clawster/pkg/target"
)

func newLogsCommand() *cobra.Command {
	var tailLines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent gateway log lines",
		Long: `Show recent gateway log lines from the backend.

Logs are best-effort: backends whose logs are only available as a live
stream (Cloudflare Workers) or through a separate service (Cloud Run)
report them as unavailable here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			lines := rt.target.GetLogs(ctx, target.LogOptions{TailLines: tailLines})

			if jsonOutput {
				return printJSON(lines)
			}
			if lines == nil {
				fmt.Println("logs unavailable for this target")
				return nil
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tailLines, "tail", "n", 0, "limit output to the last N lines")
	return cmd
}
