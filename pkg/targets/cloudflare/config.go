// Package cloudflare implements the deployment target that runs the
// gateway inside a sandboxed container attached to a Cloudflare Worker,
// deployed through the wrangler CLI.
package cloudflare

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clawster/clawster/pkg/provision"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// Config holds Cloudflare Workers target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// AccountID is the Cloudflare account.
	AccountID string

	// ProjectDir is where the generated worker project lives. Defaults to
	// ~/.clawster/workers/<profile>.
	ProjectDir string

	// WorkersSubdomain is the account's workers.dev subdomain, used to
	// derive the public endpoint.
	WorkersSubdomain string

	// R2Bucket, when set together with the credentials, enables state
	// backup to R2 before destroy.
	R2Bucket          string
	R2AccessKeyID     string
	R2SecretAccessKey string
}

// WorkerName derives the worker's name from the profile.
func (c *Config) WorkerName() string {
	return provision.SanitizeName("openclaw-" + c.ProfileName)
}

// DefaultConfig returns a Config with defaults for the profile.
func DefaultConfig(profileName, accountID string) *Config {
	return &Config{
		ProfileName: profileName,
		AccountID:   accountID,
	}
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if c.ProjectDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		c.ProjectDir = filepath.Join(home, ".clawster", "workers", provision.SanitizeName(c.ProfileName))
	}
	return nil
}
