// Package target defines the shared deployment lifecycle contract that every
// execution backend implements. A Target owns the backend-specific client
// handles and derived resource names for exactly one gateway instance; the
// orchestrator selects a concrete Target by configuration and drives it
// through the uniform method set.
package target

import (
	"context"
	"fmt"
)

// Kind identifies a concrete backend implementation.
type Kind string

const (
	// KindLocal runs the gateway as a process on the local machine.
	KindLocal Kind = "local"

	// KindRemoteVM runs the gateway on a generic VM reached over SSH.
	KindRemoteVM Kind = "remote-vm"

	// KindKubernetes runs the gateway as a Deployment in a cluster.
	KindKubernetes Kind = "kubernetes"

	// KindECSEC2 runs the gateway as an ECS service on EC2 capacity.
	KindECSEC2 Kind = "ecs-ec2"

	// KindAzureVM runs the gateway on an Azure virtual machine.
	KindAzureVM Kind = "azure-vm"

	// KindCloudRun runs the gateway as a Cloud Run service behind an
	// external application load balancer.
	KindCloudRun Kind = "cloud-run"

	// KindCloudflareWorkers runs the gateway in a Cloudflare Worker with a
	// sandboxed container.
	KindCloudflareWorkers Kind = "cloudflare-workers"
)

// State is the lifecycle state of a gateway instance as observed on the
// backend. It is derived by polling, never cached across calls.
type State string

const (
	// StateNotInstalled means no backend resources exist for the instance.
	StateNotInstalled State = "not-installed"

	// StateRunning means the gateway process is up on the backend.
	StateRunning State = "running"

	// StateStopped means resources exist but the gateway is not running.
	StateStopped State = "stopped"

	// StateError means the backend reported a condition the target could
	// not map to a healthy state.
	StateError State = "error"
)

// InstallOptions is the input to Install.
type InstallOptions struct {
	// ProfileName names the gateway instance. All derived resource names
	// are a pure function of this value, so repeated installs for the same
	// profile converge on the same resource set.
	ProfileName string `json:"profileName"`

	// Port is the gateway listen port.
	Port int `json:"port"`

	// AuthToken is the gateway auth token, if any.
	AuthToken string `json:"authToken,omitempty"`

	// ContainerEnv is extra environment for the gateway container/process.
	ContainerEnv map[string]string `json:"containerEnv,omitempty"`

	// Version selects the gateway version to install. Empty means latest.
	Version string `json:"version,omitempty"`
}

// InstallResult is the immutable record of one install attempt.
type InstallResult struct {
	// Success reports whether the install converged.
	Success bool `json:"success"`

	// InstanceID identifies the installed instance.
	InstanceID string `json:"instanceId"`

	// Message is a human-readable description of the outcome.
	Message string `json:"message"`

	// ServiceName is the backend service unit created, if any.
	ServiceName string `json:"serviceName,omitempty"`

	// InstallPath is where the gateway was installed, if meaningful.
	InstallPath string `json:"installPath,omitempty"`
}

// ConfigureResult is the outcome of one Configure call.
type ConfigureResult struct {
	// Success reports whether the configuration was applied.
	Success bool `json:"success"`

	// Message is a human-readable description of the outcome.
	Message string `json:"message"`

	// RequiresRestart is true when the new configuration only takes effect
	// after a restart.
	RequiresRestart bool `json:"requiresRestart"`
}

// Status is the observed state of an instance.
type Status struct {
	// State is the observed lifecycle state.
	State State `json:"state"`

	// GatewayPort is the gateway listen port, when known.
	GatewayPort int `json:"gatewayPort,omitempty"`

	// Error describes the condition behind StateError, when set.
	Error string `json:"error,omitempty"`
}

// Protocol is the gateway wire protocol.
type Protocol string

const (
	// ProtocolWS is plain WebSocket.
	ProtocolWS Protocol = "ws"

	// ProtocolWSS is WebSocket over TLS.
	ProtocolWSS Protocol = "wss"
)

// GatewayEndpoint is the public ingress address of a gateway instance. It
// must never resolve to an internal-only URL; for backends fronted by a load
// balancer it is the load balancer address, not the service address.
type GatewayEndpoint struct {
	// Host is the hostname or IP address.
	Host string `json:"host"`

	// Port is the reachable port.
	Port int `json:"port"`

	// Protocol is ws or wss.
	Protocol Protocol `json:"protocol"`
}

// URL renders the endpoint as a WebSocket URL.
func (e GatewayEndpoint) URL() string {
	return fmt.Sprintf("%s://%s:%d", e.Protocol, e.Host, e.Port)
}

// LogOptions controls GetLogs.
type LogOptions struct {
	// TailLines limits output to the last N lines. Zero means the target's
	// default.
	TailLines int
}

// ConfigPayload is the target-agnostic logical configuration of a gateway
// instance. Each target applies its own structural rewrite before
// persisting or injecting it.
type ConfigPayload struct {
	// ProfileName names the instance being configured.
	ProfileName string `json:"profileName"`

	// GatewayPort is the gateway listen port.
	GatewayPort int `json:"gatewayPort"`

	// Environment is extra process environment for the gateway.
	Environment map[string]string `json:"environment,omitempty"`

	// Config is the gateway configuration document (arbitrary JSON).
	Config map[string]any `json:"config"`
}

// DeploymentTarget is the contract every backend satisfies.
//
// Install and Configure never return an error: failures are captured in the
// result so callers always receive a result object for these two
// operations. Start, Stop and Restart are single-step operations whose
// errors propagate for the caller to retry. GetStatus and GetLogs degrade
// gracefully; GetEndpoint is the one read path allowed to fail, because a
// caller needs to know unambiguously that the gateway is unreachable.
// Destroy continues past individually missing resources and only reports
// genuinely unexpected failures.
type DeploymentTarget interface {
	// Install provisions all backend resources for the instance. Safe to
	// call repeatedly: every provisioning step is ensure-or-create.
	Install(ctx context.Context, opts InstallOptions) InstallResult

	// Configure applies a new gateway configuration.
	Configure(ctx context.Context, payload ConfigPayload) ConfigureResult

	// Start brings the gateway up.
	Start(ctx context.Context) error

	// Stop brings the gateway down without releasing resources.
	Stop(ctx context.Context) error

	// Restart restarts the gateway.
	Restart(ctx context.Context) error

	// GetStatus reports the observed lifecycle state.
	GetStatus(ctx context.Context) Status

	// GetLogs returns recent gateway log lines, or nil when logs are
	// unavailable. Logs are best-effort observability, never a correctness
	// dependency.
	GetLogs(ctx context.Context, opts LogOptions) []string

	// GetEndpoint resolves the public ingress address of the gateway.
	GetEndpoint(ctx context.Context) (GatewayEndpoint, error)

	// Destroy tears down all backend resources for the instance.
	Destroy(ctx context.Context) error
}
