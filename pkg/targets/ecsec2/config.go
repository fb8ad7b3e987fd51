// Package ecsec2 implements the deployment target that runs the gateway
// as an ECS service on EC2 container instances.
package ecsec2

import (
	"fmt"

	"github.com/clawster/clawster/pkg/provision"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// Config holds ECS target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// Region is the AWS region, used for log configuration.
	Region string

	// Image is the gateway container image.
	Image string

	// CPU and Memory are the task-level reservations.
	CPU    int32
	Memory int32
}

// DefaultConfig returns a Config with defaults for the profile.
func DefaultConfig(profileName, region string) *Config {
	return &Config{
		ProfileName: profileName,
		Region:      region,
		Image:       "openclaw/gateway:latest",
		CPU:         512,
		Memory:      1024,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Image == "" {
		c.Image = "openclaw/gateway:latest"
	}
	if c.CPU <= 0 {
		c.CPU = 512
	}
	if c.Memory <= 0 {
		c.Memory = 1024
	}
	return nil
}

// clusterName derives the per-profile ECS cluster name.
func (c *Config) clusterName() string {
	return provision.SanitizeName("clawster-" + c.ProfileName)
}

// serviceName derives the ECS service name.
func (c *Config) serviceName() string {
	return provision.SanitizeName("openclaw-" + c.ProfileName)
}

// taskFamily derives the task definition family.
func (c *Config) taskFamily() string {
	return provision.SanitizeName("openclaw-" + c.ProfileName)
}

// logGroupName derives the CloudWatch log group name.
func (c *Config) logGroupName() string {
	return "/clawster/" + provision.SanitizeName(c.ProfileName)
}
