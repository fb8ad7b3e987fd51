package cloudrun

import (
	"fmt"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// Config holds Cloud Run target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// ProjectID is the GCP project.
	ProjectID string

	// Region hosts the Cloud Run service and its serverless NEG.
	Region string

	// Image is the gateway container image.
	Image string

	// VPCConnector is the name of a pre-created Serverless VPC Access
	// connector. Connectors cannot be provisioned through the API surface
	// this target uses, so creating one is a documented manual step:
	//
	//   gcloud compute networks vpc-access connectors create <name> \
	//     --network <network> --region <region> --range 10.8.0.0/28
	//
	// Install fails with a clear message when it is missing.
	VPCConnector string

	// AllowedCIDRs, when non-empty, enables a Cloud Armor policy that
	// admits only these ranges and answers 403 to everyone else.
	AllowedCIDRs []string

	// SSLCertificateID, when set, selects an HTTPS proxy with this
	// certificate instead of a plain HTTP proxy.
	SSLCertificateID string

	// MaxInstances caps Cloud Run scaling.
	MaxInstances int
}

// DefaultConfig returns a Config with defaults for the profile.
func DefaultConfig(profileName, projectID string) *Config {
	return &Config{
		ProfileName:  profileName,
		ProjectID:    projectID,
		Region:       "europe-west1",
		Image:        "openclaw/gateway:latest",
		MaxInstances: 3,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Image == "" {
		c.Image = "openclaw/gateway:latest"
	}
	if c.MaxInstances <= 0 {
		c.MaxInstances = 3
	}
	return nil
}
