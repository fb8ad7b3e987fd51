// Package kubernetes implements the deployment target that runs the
// gateway as a Deployment inside a cluster, reachable only on the
// cluster network.
package kubernetes

import (
	"fmt"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// sysboxRuntimeClass is the RuntimeClass the gateway pod runs under by
// default. Sysbox gives the agent sandbox a real container boundary.
const sysboxRuntimeClass = "sysbox-runc"

// fieldManager identifies clawster in server-side apply operations.
const fieldManager = "clawster"

// Config holds Kubernetes target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// Namespace the gateway resources live in.
	Namespace string

	// Image is the gateway container image.
	Image string

	// Replicas is the desired replica count while started.
	Replicas int32

	// AllowWithoutSysbox opts out of the Sysbox RuntimeClass. Development
	// clusters only; the opt-out is logged at install time.
	AllowWithoutSysbox bool
}

// DefaultConfig returns a Config with defaults for the profile.
func DefaultConfig(profileName string) *Config {
	return &Config{
		ProfileName: profileName,
		Namespace:   "clawster",
		Image:       "openclaw/gateway:latest",
		Replicas:    1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return nil
}
