package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
)

// CommandRunner executes a command and returns its combined output. The
// install path goes through this interface so tests can fake the package
// manager.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// Target runs the gateway as a local OS process managed through a pid file.
type Target struct {
	config *Config
	runner CommandRunner
}

// NewTarget creates a local deployment target.
func NewTarget(config *Config) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid local target config: %w", err)
	}
	return &Target{config: config, runner: execRunner{}}, nil
}

// Install installs the gateway package with npm and prepares the profile
// state directory.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	pkg := t.config.InstallPackage
	if opts.Version != "" {
		pkg = fmt.Sprintf("%s@%s", pkg, opts.Version)
	}

	log.Info().Str("profile", t.config.ProfileName).Str("package", pkg).Msg("installing gateway locally")

	if out, err := t.runner.Run(ctx, "npm", "install", "-g", pkg); err != nil {
		return target.InstallResult{
			Success: false,
			Message: fmt.Sprintf("npm install failed: %v: %s", err, out),
		}
	}

	if err := os.MkdirAll(t.config.profileDir(), 0700); err != nil {
		return target.InstallResult{
			Success: false,
			Message: fmt.Sprintf("failed to create state directory: %v", err),
		}
	}

	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	if err := t.writePort(port); err != nil {
		return target.InstallResult{
			Success: false,
			Message: fmt.Sprintf("failed to persist gateway port: %v", err),
		}
	}

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("gateway installed for profile %s", t.config.ProfileName),
		ServiceName: t.config.GatewayBinary,
		InstallPath: t.config.profileDir(),
	}
}

// Configure writes the transformed gateway configuration to the profile
// state directory.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}

	if err := os.MkdirAll(t.config.profileDir(), 0700); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to create state directory: %v", err)}
	}
	if err := os.WriteFile(t.config.configPath(), rendered, 0600); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to write config: %v", err)}
	}
	if payload.GatewayPort > 0 {
		if err := t.writePort(payload.GatewayPort); err != nil {
			return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to persist gateway port: %v", err)}
		}
	}

	pid, _ := readPid(t.config.pidPath())
	return target.ConfigureResult{
		Success:         true,
		Message:         "configuration written",
		RequiresRestart: processAlive(pid),
	}
}

// Start launches the gateway process detached from clawster, logging to
// the profile log file.
func (t *Target) Start(ctx context.Context) error {
	pid, err := readPid(t.config.pidPath())
	if err != nil {
		return err
	}
	if processAlive(pid) {
		log.Debug().Int("pid", pid).Msg("gateway already running")
		return nil
	}

	port, err := t.readPort()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(t.config.logPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(t.config.GatewayBinary, "gateway", "--port", strconv.Itoa(port))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "OPENCLAW_CONFIG="+t.config.configPath())
	// New session so the gateway survives clawster exiting.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	if err := writePid(t.config.pidPath(), cmd.Process.Pid); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	_ = cmd.Process.Release()

	log.Info().Int("pid", cmd.Process.Pid).Int("port", port).Msg("gateway started")
	return nil
}

// Stop terminates the gateway process, escalating from SIGTERM to SIGKILL
// after a grace period.
func (t *Target) Stop(ctx context.Context) error {
	pid, err := readPid(t.config.pidPath())
	if err != nil {
		return err
	}
	if !processAlive(pid) {
		_ = os.Remove(t.config.pidPath())
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find gateway process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal gateway: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = os.Remove(t.config.pidPath())
			log.Info().Int("pid", pid).Msg("gateway stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	log.Warn().Int("pid", pid).Msg("gateway did not stop in time, killing")
	_ = proc.Kill()
	_ = os.Remove(t.config.pidPath())
	return nil
}

// Restart stops then starts the gateway.
func (t *Target) Restart(ctx context.Context) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	return t.Start(ctx)
}

// GetStatus inspects the pid file and state directory.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	port, _ := t.readPort()

	pid, err := readPid(t.config.pidPath())
	if err != nil {
		return target.Status{State: target.StateError, Error: err.Error()}
	}
	if processAlive(pid) {
		return target.Status{State: target.StateRunning, GatewayPort: port}
	}
	if _, err := os.Stat(t.config.configPath()); err == nil {
		return target.Status{State: target.StateStopped, GatewayPort: port}
	}
	return target.Status{State: target.StateNotInstalled}
}

// GetLogs returns the last lines of the gateway log file.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	data, err := os.ReadFile(t.config.logPath())
	if err != nil {
		return nil
	}
	tail := opts.TailLines
	if tail <= 0 {
		tail = 100
	}
	return tailLines(string(data), tail)
}

// GetEndpoint returns the loopback gateway endpoint.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	port, err := t.readPort()
	if err != nil {
		return target.GatewayEndpoint{}, err
	}
	return target.GatewayEndpoint{Host: "127.0.0.1", Port: port, Protocol: target.ProtocolWS}, nil
}

// Destroy stops the gateway and removes the profile state directory.
func (t *Target) Destroy(ctx context.Context) error {
	provision.BestEffortDelete(ctx, "local gateway process", func(ctx context.Context) error {
		return t.Stop(ctx)
	})
	if err := os.RemoveAll(t.config.profileDir()); err != nil {
		return fmt.Errorf("failed to remove state directory: %w", err)
	}
	log.Info().Str("profile", t.config.ProfileName).Msg("local gateway destroyed")
	return nil
}

func (t *Target) writePort(port int) error {
	return os.WriteFile(t.config.portPath(), []byte(strconv.Itoa(port)), 0600)
}

func (t *Target) readPort() (int, error) {
	data, err := os.ReadFile(t.config.portPath())
	if os.IsNotExist(err) {
		return DefaultGatewayPort, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read port file: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid port file: %w", err)
	}
	return port, nil
}
