// Package azurevm implements the deployment target that runs the gateway
// on an Azure virtual machine behind an Application Gateway.
package azurevm

import (
	"fmt"
	"strings"

	"github.com/clawster/clawster/pkg/provision"
)

// Names is the full deterministic resource name set for one gateway VM.
// Re-deriving from the same inputs always yields the same names; that is
// what makes repeated installs converge instead of duplicating resources.
type Names struct {
	// Per-profile resources.
	VNet             string
	NSG              string
	VMSubnet         string
	AppGatewaySubnet string
	PublicIP         string
	NIC              string
	DataDisk         string
	VM               string
	AppGateway       string

	// Group-scoped shared resources, derived from the subscription and
	// resource group only so every VM in the group reuses one set.
	StorageAccount string
	FileShare      string
	Identity       string
	KeyVault       string
}

// DeriveNames computes the resource name set for a profile within a
// resource group.
func DeriveNames(subscriptionID, resourceGroup, profileName string) Names {
	profile := provision.SanitizeName(profileName)
	groupHash := provision.ShortHash(subscriptionID + ":" + resourceGroup)

	return Names{
		VNet:             "clawster-vnet-" + profile,
		NSG:              "clawster-nsg-" + profile,
		VMSubnet:         "snet-vm-" + profile,
		AppGatewaySubnet: "snet-agw-" + profile,
		PublicIP:         "clawster-pip-" + profile,
		NIC:              "clawster-nic-" + profile,
		DataDisk:         "clawster-disk-" + profile,
		VM:               "clawster-vm-" + profile,
		AppGateway:       "clawster-agw-" + profile,

		// Storage account names: 3-24 chars, lowercase alphanumeric only.
		StorageAccount: storageAccountName(groupHash),
		FileShare:      "clawster-state",
		Identity:       "clawster-id-" + groupHash,
		KeyVault:       "clawster-kv-" + groupHash,
	}
}

func storageAccountName(groupHash string) string {
	name := "clawsterst" + strings.ToLower(groupHash)
	if len(name) > 24 {
		name = name[:24]
	}
	return name
}

// vmDNSLabel derives the DNS label for the public IP.
func vmDNSLabel(profileName string) string {
	return provision.SanitizeName("clawster-" + profileName + "-" + provision.ShortHash(profileName))
}

// resourceGroupScope builds the ARM scope string for a resource group.
func resourceGroupScope(subscriptionID, resourceGroup string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscriptionID, resourceGroup)
}

// storageAccountScope builds the ARM scope string for a storage account.
func storageAccountScope(subscriptionID, resourceGroup, accountName string) string {
	return fmt.Sprintf("%s/providers/Microsoft.Storage/storageAccounts/%s",
		resourceGroupScope(subscriptionID, resourceGroup), accountName)
}

// keyVaultScope builds the ARM scope string for a key vault.
func keyVaultScope(subscriptionID, resourceGroup, vaultName string) string {
	return fmt.Sprintf("%s/providers/Microsoft.KeyVault/vaults/%s",
		resourceGroupScope(subscriptionID, resourceGroup), vaultName)
}

// appGatewaySubResourceID builds the ID of a sub-resource inside an
// Application Gateway, used for the cross-references in its properties.
func appGatewaySubResourceID(subscriptionID, resourceGroup, gatewayName, subType, subName string) string {
	return fmt.Sprintf("%s/providers/Microsoft.Network/applicationGateways/%s/%s/%s",
		resourceGroupScope(subscriptionID, resourceGroup), gatewayName, subType, subName)
}
