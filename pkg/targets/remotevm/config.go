package remotevm

import (
	"fmt"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// defaultServiceUser is the non-login system user the gateway runs as.
const defaultServiceUser = "openclaw"

// Config holds remote VM target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// Host is the VM address, used for the gateway endpoint.
	Host string

	// SSHPort is the SSH port on the VM, kept open by the firewall.
	SSHPort int

	// ServiceUser is the system user the gateway runs as.
	ServiceUser string

	// ExtraPorts are additional TCP ports the firewall allows.
	ExtraPorts []int

	// SkipHardening disables the one-time host hardening sequence.
	// Intended only for hosts hardened by other means.
	SkipHardening bool
}

// DefaultConfig returns a Config with defaults for the profile and host.
func DefaultConfig(profileName, host string) *Config {
	return &Config{
		ProfileName: profileName,
		Host:        host,
		SSHPort:     22,
		ServiceUser: defaultServiceUser,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return fmt.Errorf("invalid ssh port: %d", c.SSHPort)
	}
	if c.ServiceUser == "" {
		c.ServiceUser = defaultServiceUser
	}
	return nil
}
