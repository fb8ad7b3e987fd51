package cloudflare

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/targets/cloudflare/statesync"
)

// configSecretName is the worker secret carrying the rendered gateway
// configuration.
const configSecretName = "OPENCLAW_CONFIG_JSON"

// WranglerRunner executes the wrangler CLI in a project directory.
// stdin feeds wrangler's interactive secret input.
type WranglerRunner interface {
	Run(ctx context.Context, dir, stdin string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "wrangler", args...)
	cmd.Dir = dir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("wrangler %s: %w: %s", strings.Join(args, " "), err, output)
	}
	return string(output), nil
}

// Target manages the gateway as a Cloudflare Worker with a sandboxed
// container, driven through the wrangler CLI.
type Target struct {
	config *Config
	runner WranglerRunner
	syncer *statesync.Syncer

	gatewayPort int
	version     string
	vars        map[string]string
}

// NewTarget creates a Cloudflare Workers deployment target. When the
// config carries R2 credentials, state is backed up before destroy.
func NewTarget(config *Config) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloudflare config: %w", err)
	}

	t := &Target{
		config:      config,
		runner:      execRunner{},
		gatewayPort: DefaultGatewayPort,
	}
	if config.R2Bucket != "" && config.R2AccessKeyID != "" {
		store := statesync.NewR2Store(config.AccountID, config.R2AccessKeyID, config.R2SecretAccessKey, config.R2Bucket)
		t.syncer = statesync.NewSyncer(store, config.WorkerName(), filepath.Join(config.ProjectDir, "state"))
	}
	return t, nil
}

// Install generates the worker project (manifest, container image,
// start script, worker entry) and deploys it.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port
	t.version = opts.Version

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("worker", t.config.WorkerName()).
		Str("dir", t.config.ProjectDir).
		Msg("scaffolding cloudflare worker project")

	if err := scaffoldProject(t.config.ProjectDir, t.scaffoldParams()); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to scaffold project: %v", err)}
	}

	if err := t.restoreIfNewer(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("state restore failed: %v", err)}
	}

	if _, err := t.runner.Run(ctx, t.config.ProjectDir, "", "deploy"); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("wrangler deploy failed: %v", err)}
	}

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("worker %s deployed", t.config.WorkerName()),
		InstanceID:  t.config.WorkerName(),
		ServiceName: t.config.WorkerName(),
		InstallPath: t.config.ProjectDir,
	}
}

func (t *Target) scaffoldParams() scaffoldParams {
	return scaffoldParams{
		WorkerName: t.config.WorkerName(),
		Port:       t.gatewayPort,
		Version:    t.version,
		Vars:       t.vars,
	}
}

// Configure splits the environment into worker secrets and plain
// variables, rewrites the manifest with the variables, and pushes every
// secret one by one through wrangler's stdin secret input. Secret values
// never touch the manifest or any other file.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}
	if payload.GatewayPort > 0 {
		t.gatewayPort = payload.GatewayPort
	}

	secrets, vars := botconfig.SplitEnvironment(payload.Environment)
	t.vars = vars

	if err := scaffoldProject(t.config.ProjectDir, t.scaffoldParams()); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to rewrite project: %v", err)}
	}

	// The rendered configuration carries tokens, so it travels as a
	// secret too.
	secretNames := make([]string, 0, len(secrets)+1)
	for name := range secrets {
		secretNames = append(secretNames, name)
	}
	sort.Strings(secretNames)

	for _, name := range secretNames {
		if err := t.putSecret(ctx, name, secrets[name]); err != nil {
			return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to push secret %s: %v", name, err)}
		}
	}
	if err := t.putSecret(ctx, configSecretName, string(rendered)); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to push gateway config: %v", err)}
	}

	return target.ConfigureResult{
		Success:         true,
		Message:         fmt.Sprintf("configuration applied: %d secrets, %d vars", len(secretNames)+1, len(vars)),
		RequiresRestart: true,
	}
}

func (t *Target) putSecret(ctx context.Context, name, value string) error {
	_, err := t.runner.Run(ctx, t.config.ProjectDir, value, "secret", "put", name, "--name", t.config.WorkerName())
	return err
}

// Start deploys the worker, making it live. Any newer remote state is
// pulled down first so the redeployed container resumes where the last
// one left off.
func (t *Target) Start(ctx context.Context) error {
	if err := t.restoreIfNewer(ctx); err != nil {
		return err
	}
	if _, err := t.runner.Run(ctx, t.config.ProjectDir, "", "deploy"); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// restoreIfNewer replaces local state with the remote backup when the
// backup is strictly newer or no local state exists. A failed restore
// aborts the operation: going live on stale state would fork history.
func (t *Target) restoreIfNewer(ctx context.Context) error {
	if t.syncer == nil {
		return nil
	}
	should, err := t.syncer.ShouldRestore(ctx)
	if err != nil {
		return fmt.Errorf("failed to compare state timestamps: %w", err)
	}
	if !should {
		return nil
	}
	if err := t.syncer.RestoreFromR2(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	return nil
}

// Stop removes the worker from the edge. The project directory stays so
// a later Start redeploys without reinstalling.
func (t *Target) Stop(ctx context.Context) error {
	if _, err := t.runner.Run(ctx, t.config.ProjectDir, "", "delete", "--name", t.config.WorkerName()); err != nil {
		return fmt.Errorf("failed to stop worker: %w", err)
	}
	return nil
}

// Restart redeploys the worker, rolling its container.
func (t *Target) Restart(ctx context.Context) error {
	if _, err := t.runner.Run(ctx, t.config.ProjectDir, "", "deploy"); err != nil {
		return fmt.Errorf("failed to restart worker: %w", err)
	}
	return nil
}

// GetStatus probes the worker through wrangler. A listable deployment
// means running; a scaffolded project without one means stopped.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	if _, err := os.Stat(filepath.Join(t.config.ProjectDir, "wrangler.toml")); err != nil {
		return target.Status{State: target.StateNotInstalled}
	}
	if _, err := t.runner.Run(ctx, t.config.ProjectDir, "", "deployments", "list", "--name", t.config.WorkerName()); err != nil {
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	}
	return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
}

// GetLogs returns nil: worker logs are a live stream (`wrangler tail`),
// not a retrievable batch.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	log.Debug().Str("worker", t.config.WorkerName()).Msg("worker logs are stream-only; use wrangler tail")
	return nil
}

// GetEndpoint derives the worker's public workers.dev address.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	if t.config.WorkersSubdomain == "" {
		return target.GatewayEndpoint{}, fmt.Errorf("workers.dev subdomain is not configured")
	}
	host := fmt.Sprintf("%s.%s.workers.dev", t.config.WorkerName(), t.config.WorkersSubdomain)
	return target.GatewayEndpoint{Host: host, Port: 443, Protocol: target.ProtocolWSS}, nil
}

// Destroy backs state up (advisory, when R2 is configured), deletes the
// worker, and removes the project directory.
func (t *Target) Destroy(ctx context.Context) error {
	if t.syncer != nil {
		provision.Advisory(ctx, "backup state before destroy", func(ctx context.Context) error {
			return t.syncer.BackupToR2(ctx)
		})
	}

	provision.BestEffortDelete(ctx, "worker "+t.config.WorkerName(), func(ctx context.Context) error {
		_, err := t.runner.Run(ctx, t.config.ProjectDir, "", "delete", "--name", t.config.WorkerName())
		return err
	})
	provision.BestEffortDelete(ctx, "project directory "+t.config.ProjectDir, func(ctx context.Context) error {
		return os.RemoveAll(t.config.ProjectDir)
	})

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("worker", t.config.WorkerName()).
		Msg("cloudflare worker destroyed")
	return nil
}

// NewTargetWithRunner is the constructor used by tests to inject a fake
// wrangler runner and synchronizer.
func NewTargetWithRunner(config *Config, runner WranglerRunner, syncer *statesync.Syncer) (*Target, error) {
	t, err := NewTarget(config)
	if err != nil {
		return nil, err
	}
	t.runner = runner
	if syncer != nil {
		t.syncer = syncer
	}
	return t, nil
}
