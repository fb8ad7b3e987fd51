package azurevm

import (
	"fmt"
)

// DefaultGatewayPort is used when install options carry no port.
const DefaultGatewayPort = 18789

// Config holds Azure VM target configuration.
type Config struct {
	// ProfileName identifies the gateway instance.
	ProfileName string

	// SubscriptionID and TenantID identify the Azure subscription.
	SubscriptionID string
	TenantID       string

	// ResourceGroup all resources are created in. Shared infrastructure
	// is scoped to this group.
	ResourceGroup string

	// Location is the Azure region.
	Location string

	// VMSize is the VM SKU.
	VMSize string

	// AdminUsername is the VM admin account.
	AdminUsername string

	// SSHPublicKey authorizes the admin account.
	SSHPublicKey string

	// EnableAppGateway fronts the VM with an Application Gateway. When
	// set, the VM itself gets no public IP.
	EnableAppGateway bool
}

// DefaultConfig returns a Config with defaults for the profile.
func DefaultConfig(profileName, subscriptionID, resourceGroup string) *Config {
	return &Config{
		ProfileName:      profileName,
		SubscriptionID:   subscriptionID,
		ResourceGroup:    resourceGroup,
		Location:         "westeurope",
		VMSize:           "Standard_B2s",
		AdminUsername:    "clawster",
		EnableAppGateway: true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ProfileName == "" {
		return fmt.Errorf("profile name is required")
	}
	if c.SubscriptionID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if c.ResourceGroup == "" {
		return fmt.Errorf("resource group is required")
	}
	if c.Location == "" {
		return fmt.Errorf("location is required")
	}
	if c.SSHPublicKey == "" {
		return fmt.Errorf("ssh public key is required")
	}
	if c.VMSize == "" {
		c.VMSize = "Standard_B2s"
	}
	if c.AdminUsername == "" {
		c.AdminUsername = "clawster"
	}
	return nil
}
