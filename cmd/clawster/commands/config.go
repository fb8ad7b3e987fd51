package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk clawster configuration. One file describes one
// gateway instance: the profile, the target backend, and the backend's
// connection settings.
type FileConfig struct {
	// Profile names the gateway instance.
	Profile string `yaml:"profile" validate:"required"`

	// Target selects the deployment backend.
	Target string `yaml:"target" validate:"required,oneof=local remote-vm kubernetes ecs-ec2 azure-vm cloud-run cloudflare-workers"`

	// Install carries the install-time options.
	Install InstallSection `yaml:"install"`

	// GatewayConfig is the path to the gateway configuration document
	// (JSON) applied by `clawster configure`.
	GatewayConfig string `yaml:"gatewayConfig"`

	// Environment is extra process environment for the gateway. Keys that
	// look secret-bearing are routed through each backend's secret channel.
	Environment map[string]string `yaml:"environment"`

	Store     StoreSection     `yaml:"store"`
	Telemetry TelemetrySection `yaml:"telemetry"`

	// Exactly the section matching Target must be present.
	Local      *LocalSection      `yaml:"local"`
	RemoteVM   *RemoteVMSection   `yaml:"remoteVM"`
	Kubernetes *KubernetesSection `yaml:"kubernetes"`
	ECS        *ECSSection        `yaml:"ecs"`
	Azure      *AzureSection      `yaml:"azure"`
	CloudRun   *CloudRunSection   `yaml:"cloudRun"`
	Cloudflare *CloudflareSection `yaml:"cloudflare"`
}

// InstallSection carries install-time options.
type InstallSection struct {
	Port      int    `yaml:"port" validate:"min=0,max=65535"`
	Version   string `yaml:"version"`
	AuthToken string `yaml:"authToken"`
}

// StoreSection configures the local instance registry.
type StoreSection struct {
	// Path to the SQLite database. Defaults to ~/.clawster/clawster.db.
	Path string `yaml:"path"`
}

// TelemetrySection configures logging, metrics, and tracing.
type TelemetrySection struct {
	LogLevel  string `yaml:"logLevel" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `yaml:"logFormat" validate:"omitempty,oneof=console json"`
	LogOutput string `yaml:"logOutput"`

	MetricsEnabled bool   `yaml:"metricsEnabled"`
	MetricsListen  string `yaml:"metricsListen"`

	TracingEnabled  bool    `yaml:"tracingEnabled"`
	TracingExporter string  `yaml:"tracingExporter" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string  `yaml:"tracingEndpoint"`
	SamplingRate    float64 `yaml:"samplingRate" validate:"min=0,max=1"`
}

// LocalSection configures the local process target.
type LocalSection struct {
	StateDir       string `yaml:"stateDir"`
	GatewayBinary  string `yaml:"gatewayBinary"`
	InstallPackage string `yaml:"installPackage"`
}

// RemoteVMSection configures the SSH-managed VM target.
type RemoteVMSection struct {
	Host          string `yaml:"host" validate:"required"`
	User          string `yaml:"user" validate:"required"`
	Port          int    `yaml:"port" validate:"min=0,max=65535"`
	ServiceUser   string `yaml:"serviceUser"`
	ExtraPorts    []int  `yaml:"extraPorts" validate:"dive,min=1,max=65535"`
	SkipHardening bool   `yaml:"skipHardening"`

	PrivateKeyPath        string `yaml:"privateKeyPath"`
	Password              string `yaml:"password"`
	KnownHostsPath        string `yaml:"knownHostsPath"`
	StrictHostKeyChecking *bool  `yaml:"strictHostKeyChecking"`

	// ConnectTimeoutSeconds bounds SSH connection establishment.
	ConnectTimeoutSeconds int `yaml:"connectTimeoutSeconds" validate:"min=0"`
}

// KubernetesSection configures the in-cluster target.
type KubernetesSection struct {
	Kubeconfig         string `yaml:"kubeconfig"`
	Context            string `yaml:"context"`
	Namespace          string `yaml:"namespace"`
	Image              string `yaml:"image"`
	Replicas           int32  `yaml:"replicas" validate:"min=0"`
	AllowWithoutSysbox bool   `yaml:"allowWithoutSysbox"`
}

// ECSSection configures the ECS-on-EC2 target. AWS credentials come from
// the ambient credential chain.
type ECSSection struct {
	Region string `yaml:"region" validate:"required"`
	Image  string `yaml:"image"`
	CPU    int32  `yaml:"cpu" validate:"min=0"`
	Memory int32  `yaml:"memory" validate:"min=0"`
}

// AzureSection configures the Azure VM target. Credentials come from the
// default Azure credential chain.
type AzureSection struct {
	SubscriptionID   string `yaml:"subscriptionId" validate:"required"`
	TenantID         string `yaml:"tenantId" validate:"required"`
	ResourceGroup    string `yaml:"resourceGroup" validate:"required"`
	Location         string `yaml:"location"`
	VMSize           string `yaml:"vmSize"`
	AdminUsername    string `yaml:"adminUsername"`
	SSHPublicKey     string `yaml:"sshPublicKey" validate:"required"`
	EnableAppGateway *bool  `yaml:"enableAppGateway"`
}

// CloudRunSection configures the Cloud Run target. Credentials come from
// application default credentials.
type CloudRunSection struct {
	ProjectID        string   `yaml:"projectId" validate:"required"`
	Region           string   `yaml:"region"`
	Image            string   `yaml:"image"`
	VPCConnector     string   `yaml:"vpcConnector"`
	AllowedCIDRs     []string `yaml:"allowedCidrs" validate:"dive,cidr"`
	SSLCertificateID string   `yaml:"sslCertificateId"`
	MaxInstances     int      `yaml:"maxInstances" validate:"min=0"`
}

// CloudflareSection configures the Cloudflare Workers target.
type CloudflareSection struct {
	AccountID        string `yaml:"accountId" validate:"required"`
	ProjectDir       string `yaml:"projectDir"`
	WorkersSubdomain string `yaml:"workersSubdomain"`

	R2Bucket          string `yaml:"r2Bucket"`
	R2AccessKeyID     string `yaml:"r2AccessKeyId"`
	R2SecretAccessKey string `yaml:"r2SecretAccessKey"`
}

// LoadConfig reads and validates a clawster configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field constraints and that the section for the selected
// target is present.
func (c *FileConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	sections := map[string]bool{
		"local":              c.Local != nil,
		"remote-vm":          c.RemoteVM != nil,
		"kubernetes":         c.Kubernetes != nil,
		"ecs-ec2":            c.ECS != nil,
		"azure-vm":           c.Azure != nil,
		"cloud-run":          c.CloudRun != nil,
		"cloudflare-workers": c.Cloudflare != nil,
	}
	// The local target works with defaults alone.
	if c.Target != "local" && !sections[c.Target] {
		return fmt.Errorf("target %s selected but its config section is missing", c.Target)
	}
	return nil
}

// StorePath resolves the instance registry path.
func (c *FileConfig) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".clawster", "clawster.db"), nil
}
