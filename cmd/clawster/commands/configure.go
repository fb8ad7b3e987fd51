package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/telemetry"
)

func newConfigureCommand() *cobra.Command {
	var gatewayConfigPath string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Apply the gateway configuration",
		Long: `Apply the gateway configuration document to the instance.

The document is rewritten per backend before delivery (bind mode, sandbox
mode, channel/skill restrictions) and secret-bearing environment keys are
routed through the backend's secret channel. Most backends require a
restart for the new configuration to take effect.`,
		Example: `  # Apply the config document referenced by clawster.yaml
  clawster configure

  # Apply an explicit document
  clawster configure --gateway-config ./openclaw.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			path := gatewayConfigPath
			if path == "" {
				path = rt.cfg.GatewayConfig
			}
			if path == "" {
				return fmt.Errorf("no gateway config document: set gatewayConfig in the config file or pass --gateway-config")
			}
			doc, err := loadGatewayConfig(path)
			if err != nil {
				return err
			}

			log.Info().
				Str("profile", rt.cfg.Profile).
				Str("target", string(rt.kind)).
				Str("document", path).
				Msg("Applying gateway configuration")

			ctx, span := rt.tracer.StartLifecycleSpan(ctx, string(rt.kind), rt.cfg.Profile, "configure")
			defer span.End()

			start := time.Now()
			result := rt.target.Configure(ctx, target.ConfigPayload{
				ProfileName: rt.cfg.Profile,
				GatewayPort: rt.cfg.Install.Port,
				Environment: rt.cfg.Environment,
				Config:      doc,
			})

			outcome := "success"
			if !result.Success {
				outcome = "failure"
				telemetry.RecordError(span, errors.New(result.Message))
			} else {
				telemetry.RecordSuccess(span)
			}
			rt.metrics.RecordLifecycleOp(string(rt.kind), "configure", outcome, time.Since(start))
			rt.recordEvent(ctx, "configure", result.Success, result.Message)

			if jsonOutput {
				return printJSON(result)
			}
			if !result.Success {
				return fmt.Errorf("configure failed: %s", result.Message)
			}
			fmt.Println(result.Message)
			if result.RequiresRestart {
				fmt.Println("Restart required: run `clawster restart` to pick up the new configuration")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayConfigPath, "gateway-config", "", "gateway config document (JSON), overrides the config file")
	return cmd
}

// loadGatewayConfig reads the gateway configuration document.
func loadGatewayConfig(path string) (map[string]any, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config %s: %w", path, err)
	}
	return doc, nil
}
