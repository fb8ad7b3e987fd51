package remotevm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/transports/ssh"
)

// Target manages a gateway on a remote Linux host through an SSH
// transport. The transport is injected so tests can record the command
// stream without a live host.
type Target struct {
	config    *Config
	transport ssh.Transport

	gatewayPort int
}

// NewTarget creates a remote VM deployment target.
func NewTarget(config *Config, transport ssh.Transport) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote vm config: %w", err)
	}
	if transport == nil {
		return nil, fmt.Errorf("ssh transport is required")
	}
	return &Target{config: config, transport: transport, gatewayPort: DefaultGatewayPort}, nil
}

// Install installs the gateway package, registers its systemd unit, and
// runs the host hardening sequence unless disabled. A hardening failure
// fails the install: an unhardened host must not be reported as ready.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	if err := t.transport.Connect(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("ssh connect failed: %v", err)}
	}

	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("host", t.config.Host).
		Msg("installing gateway on remote vm")

	for _, cmd := range installCommands(t.config.ProfileName, opts.Version) {
		if _, stderr, err := t.transport.ExecSudo(ctx, cmd); err != nil {
			return target.InstallResult{
				Success: false,
				Message: fmt.Sprintf("install step %q failed: %v: %s", cmd, err, stderr),
			}
		}
	}

	unit := systemdUnit(t.config.ProfileName, t.config.ServiceUser, port)
	if err := t.transport.UploadBytes(ctx, []byte(unit), unitPath(t.config.ProfileName), 0644); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to upload unit file: %v", err)}
	}

	for _, cmd := range enableCommands(t.config.ProfileName) {
		if _, stderr, err := t.transport.ExecSudo(ctx, cmd); err != nil {
			return target.InstallResult{
				Success: false,
				Message: fmt.Sprintf("install step %q failed: %v: %s", cmd, err, stderr),
			}
		}
	}

	if !t.config.SkipHardening {
		if err := t.harden(ctx, port); err != nil {
			return target.InstallResult{Success: false, Message: fmt.Sprintf("host hardening failed: %v", err)}
		}
	} else {
		log.Warn().Str("host", t.config.Host).Msg("host hardening skipped by configuration")
	}

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("gateway installed on %s", t.config.Host),
		ServiceName: serviceName(t.config.ProfileName),
		InstallPath: configDir(t.config.ProfileName),
	}
}

// harden applies the one-time host hardening sequence. Every step must
// succeed; failures propagate to the caller.
func (t *Target) harden(ctx context.Context, gatewayPort int) error {
	log.Info().Str("host", t.config.Host).Msg("hardening remote host")

	// The jail file goes up first; the package install will not overwrite
	// a pre-existing jail.local.
	jail := fail2banJail(t.config.SSHPort)
	if err := t.transport.UploadBytes(ctx, []byte(jail), "/etc/fail2ban/jail.local", 0644); err != nil {
		return fmt.Errorf("failed to upload fail2ban jail: %w", err)
	}

	for _, cmd := range hardeningCommands(t.config.SSHPort, gatewayPort, t.config.ExtraPorts, t.config.ServiceUser) {
		if _, stderr, err := t.transport.ExecSudo(ctx, cmd); err != nil {
			return fmt.Errorf("hardening step %q failed: %w: %s", cmd, err, stderr)
		}
	}
	return nil
}

// Configure uploads the transformed gateway configuration.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	if err := t.transport.Connect(ctx); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("ssh connect failed: %v", err)}
	}

	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}

	if err := t.transport.UploadBytes(ctx, rendered, configPath(t.config.ProfileName), 0600); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to upload config: %v", err)}
	}
	if payload.GatewayPort > 0 {
		t.gatewayPort = payload.GatewayPort
	}

	running := t.isActive(ctx)
	return target.ConfigureResult{
		Success:         true,
		Message:         "configuration uploaded",
		RequiresRestart: running,
	}
}

// Start starts the gateway unit.
func (t *Target) Start(ctx context.Context) error {
	return t.runLifecycle(ctx, "start")
}

// Stop stops the gateway unit.
func (t *Target) Stop(ctx context.Context) error {
	return t.runLifecycle(ctx, "stop")
}

// Restart restarts the gateway unit.
func (t *Target) Restart(ctx context.Context) error {
	return t.runLifecycle(ctx, "restart")
}

func (t *Target) runLifecycle(ctx context.Context, action string) error {
	if err := t.transport.Connect(ctx); err != nil {
		return fmt.Errorf("ssh connect failed: %w", err)
	}
	cmd := lifecycleCommand(action, t.config.ProfileName)
	if _, stderr, err := t.transport.ExecSudo(ctx, cmd); err != nil {
		return fmt.Errorf("%s failed: %w: %s", action, err, stderr)
	}
	log.Info().Str("action", action).Str("host", t.config.Host).Msg("gateway lifecycle action applied")
	return nil
}

// GetStatus maps systemd unit state to the target state.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	if err := t.transport.Connect(ctx); err != nil {
		return target.Status{State: target.StateError, Error: err.Error()}
	}

	stdout, _, _ := t.transport.Exec(ctx, lifecycleCommand("is-active", t.config.ProfileName))
	switch strings.TrimSpace(stdout) {
	case "active", "activating":
		return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
	case "inactive", "deactivating":
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	case "failed":
		return target.Status{State: target.StateError, GatewayPort: t.gatewayPort, Error: "gateway unit is in failed state"}
	}

	// Unit not present at all means never installed.
	if _, _, err := t.transport.Exec(ctx, fmt.Sprintf("test -f %s", unitPath(t.config.ProfileName))); err != nil {
		return target.Status{State: target.StateNotInstalled}
	}
	return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
}

func (t *Target) isActive(ctx context.Context) bool {
	stdout, _, _ := t.transport.Exec(ctx, lifecycleCommand("is-active", t.config.ProfileName))
	return strings.TrimSpace(stdout) == "active"
}

// GetLogs fetches recent journal lines for the gateway unit.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	if err := t.transport.Connect(ctx); err != nil {
		return nil
	}
	tail := opts.TailLines
	if tail <= 0 {
		tail = 100
	}
	stdout, _, err := t.transport.Exec(ctx, logsCommand(t.config.ProfileName, tail))
	if err != nil {
		return nil
	}
	return splitLogLines(stdout)
}

// GetEndpoint returns the gateway endpoint on the VM host.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	return target.GatewayEndpoint{
		Host:     t.config.Host,
		Port:     t.gatewayPort,
		Protocol: target.ProtocolWS,
	}, nil
}

// Destroy removes the gateway unit and configuration from the host. Each
// step is best-effort so a partially-removed install can be destroyed
// again.
func (t *Target) Destroy(ctx context.Context) error {
	if err := t.transport.Connect(ctx); err != nil {
		return fmt.Errorf("ssh connect failed: %w", err)
	}

	for _, cmd := range destroyCommands(t.config.ProfileName) {
		cmd := cmd
		provision.BestEffortDelete(ctx, cmd, func(ctx context.Context) error {
			_, stderr, err := t.transport.ExecSudo(ctx, cmd)
			if err != nil {
				return fmt.Errorf("%w: %s", err, stderr)
			}
			return nil
		})
	}

	log.Info().Str("profile", t.config.ProfileName).Str("host", t.config.Host).Msg("remote gateway destroyed")
	return nil
}
