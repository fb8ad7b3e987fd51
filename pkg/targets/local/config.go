// Package local implements the deployment target that runs the gateway as
// a process on the machine clawster itself runs on.
package local

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultGatewayPort is used when the install options carry no port.
const DefaultGatewayPort = 18789

// Config holds local target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// StateDir is the root directory for per-profile state (config file,
	// pid file, log file). Defaults to ~/.clawster.
	StateDir string

	// GatewayBinary is the gateway executable name or path. Defaults to
	// "openclaw" resolved from PATH.
	GatewayBinary string

	// InstallPackage is the npm package spec installed by Install.
	// Defaults to "openclaw".
	InstallPackage string
}

// DefaultConfig returns a Config with defaults filled in for the profile.
func DefaultConfig(profileName string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ProfileName:    profileName,
		StateDir:       filepath.Join(home, ".clawster"),
		GatewayBinary:  "openclaw",
		InstallPackage: "openclaw",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state directory is required")
	}
	if c.GatewayBinary == "" {
		c.GatewayBinary = "openclaw"
	}
	if c.InstallPackage == "" {
		c.InstallPackage = "openclaw"
	}
	return nil
}

// profileDir is where this profile keeps its runtime files.
func (c *Config) profileDir() string {
	return filepath.Join(c.StateDir, c.ProfileName)
}

func (c *Config) configPath() string {
	return filepath.Join(c.profileDir(), "openclaw.json")
}

func (c *Config) pidPath() string {
	return filepath.Join(c.profileDir(), "gateway.pid")
}

func (c *Config) logPath() string {
	return filepath.Join(c.profileDir(), "gateway.log")
}

func (c *Config) portPath() string {
	return filepath.Join(c.profileDir(), "gateway.port")
}
