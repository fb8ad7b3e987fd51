package azurevm

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
)

// The interfaces below are the exact slices of the ARM clients the four
// managers call. They take and return plain SDK struct types — pollers
// are resolved inside the adapters — so tests can fake a backend without
// constructing SDK response generics.

type virtualNetworksAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.VirtualNetwork, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, vnet armnetwork.VirtualNetwork) (armnetwork.VirtualNetwork, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type subnetsAPI interface {
	Get(ctx context.Context, resourceGroup, vnetName, name string) (armnetwork.Subnet, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, vnetName, name string, subnet armnetwork.Subnet) (armnetwork.Subnet, error)
}

type securityGroupsAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.SecurityGroup, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, nsg armnetwork.SecurityGroup) (armnetwork.SecurityGroup, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type publicIPsAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.PublicIPAddress, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, ip armnetwork.PublicIPAddress) (armnetwork.PublicIPAddress, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type interfacesAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.Interface, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, nic armnetwork.Interface) (armnetwork.Interface, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type applicationGatewaysAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.ApplicationGateway, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, gateway armnetwork.ApplicationGateway) (armnetwork.ApplicationGateway, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type disksAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armcompute.Disk, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, disk armcompute.Disk) (armcompute.Disk, error)
	Delete(ctx context.Context, resourceGroup, name string) error
}

type virtualMachinesAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachine, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, vm armcompute.VirtualMachine) (armcompute.VirtualMachine, error)
	Delete(ctx context.Context, resourceGroup, name string) error
	Start(ctx context.Context, resourceGroup, name string) error
	Deallocate(ctx context.Context, resourceGroup, name string) error
	Restart(ctx context.Context, resourceGroup, name string) error
	InstanceView(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachineInstanceView, error)
	RunCommand(ctx context.Context, resourceGroup, name string, input armcompute.RunCommandInput) (armcompute.RunCommandResult, error)
}

type storageAccountsAPI interface {
	GetProperties(ctx context.Context, resourceGroup, name string) (armstorage.Account, error)
	Create(ctx context.Context, resourceGroup, name string, params armstorage.AccountCreateParameters) (armstorage.Account, error)
}

type fileSharesAPI interface {
	Get(ctx context.Context, resourceGroup, accountName, name string) (armstorage.FileShare, error)
	Create(ctx context.Context, resourceGroup, accountName, name string, share armstorage.FileShare) (armstorage.FileShare, error)
}

type identitiesAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armmsi.Identity, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, identity armmsi.Identity) (armmsi.Identity, error)
}

type vaultsAPI interface {
	Get(ctx context.Context, resourceGroup, name string) (armkeyvault.Vault, error)
	CreateOrUpdate(ctx context.Context, resourceGroup, name string, params armkeyvault.VaultCreateOrUpdateParameters) (armkeyvault.Vault, error)
}

type roleAssignmentsAPI interface {
	Create(ctx context.Context, scope, name string, params armauthorization.RoleAssignmentCreateParameters) (armauthorization.RoleAssignment, error)
}
