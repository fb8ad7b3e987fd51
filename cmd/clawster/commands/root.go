package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clawster",
		Short: "Clawster - OpenClaw gateway deployment manager",
		Long: `Clawster provisions and manages OpenClaw gateway instances across
execution backends behind one uniform lifecycle contract.

Supported targets:
  - local               gateway process on this machine
  - remote-vm           hardened VM reached over SSH
  - kubernetes          Deployment in a cluster
  - ecs-ec2             ECS service on EC2 capacity
  - azure-vm            Azure VM, optionally behind an Application Gateway
  - cloud-run           Cloud Run behind an external load balancer
  - cloudflare-workers  Worker with a sandboxed container`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "clawster.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newRestartCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newEndpointCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newInstancesCommand())

	return rootCmd
}
