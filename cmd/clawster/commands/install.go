package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clawster/clawster/pkg/stores"
	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/telemetry"
)

func newInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Provision the gateway on the configured target",
		Long: `Provision all backend resources for the gateway instance.

Install is idempotent: every provisioning step is ensure-or-create, so
repeated installs for the same profile converge on the same resource set.`,
		Example: `  # Install using clawster.yaml in the current directory
  clawster install

  # Install with an explicit config file
  clawster install -c bots/support.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			log.Info().
				Str("profile", rt.cfg.Profile).
				Str("target", string(rt.kind)).
				Msg("Installing gateway")

			ctx, span := rt.tracer.StartLifecycleSpan(ctx, string(rt.kind), rt.cfg.Profile, "install")
			defer span.End()

			start := time.Now()
			result := rt.target.Install(ctx, target.InstallOptions{
				ProfileName:  rt.cfg.Profile,
				Port:         rt.cfg.Install.Port,
				AuthToken:    rt.cfg.Install.AuthToken,
				ContainerEnv: rt.cfg.Environment,
				Version:      rt.cfg.Install.Version,
			})

			outcome := "success"
			if !result.Success {
				outcome = "failure"
			}
			rt.metrics.RecordLifecycleOp(string(rt.kind), "install", outcome, time.Since(start))
			rt.recordEvent(ctx, "install", result.Success, result.Message)

			if !result.Success {
				telemetry.RecordError(span, errors.New(result.Message))
			} else {
				telemetry.RecordSuccess(span)
				now := time.Now().UTC()
				if err := rt.store.UpsertInstance(ctx, &stores.Instance{
					ID:         rt.instanceID(),
					Profile:    rt.cfg.Profile,
					TargetKind: string(rt.kind),
					State:      string(target.StateStopped),
					Version:    rt.cfg.Install.Version,
					CreatedAt:  now,
					UpdatedAt:  now,
				}); err != nil {
					log.Warn().Err(err).Msg("failed to record instance")
				}
			}

			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				return fmt.Errorf("install failed: %s", result.Message)
			}
			fmt.Println(result.Message)
			return nil
		},
	}
	return cmd
}
