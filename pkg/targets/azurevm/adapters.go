package azurevm

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"
)

// Clients bundles the adapted ARM clients the target needs.
type Clients struct {
	VirtualNetworks     virtualNetworksAPI
	Subnets             subnetsAPI
	SecurityGroups      securityGroupsAPI
	PublicIPs           publicIPsAPI
	Interfaces          interfacesAPI
	ApplicationGateways applicationGatewaysAPI
	Disks               disksAPI
	VirtualMachines     virtualMachinesAPI
	StorageAccounts     storageAccountsAPI
	FileShares          fileSharesAPI
	Identities          identitiesAPI
	Vaults              vaultsAPI
	RoleAssignments     roleAssignmentsAPI
}

// NewClients constructs the full ARM client set for a subscription. Long
// running operations are awaited inside the adapters so the managers see
// plain results.
func NewClients(subscriptionID string, cred azcore.TokenCredential) (*Clients, error) {
	networkFactory, err := armnetwork.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create network client factory: %w", err)
	}
	computeFactory, err := armcompute.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client factory: %w", err)
	}
	storageFactory, err := armstorage.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client factory: %w", err)
	}
	msiFactory, err := armmsi.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create msi client factory: %w", err)
	}
	keyvaultFactory, err := armkeyvault.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyvault client factory: %w", err)
	}
	authFactory, err := armauthorization.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization client factory: %w", err)
	}

	return &Clients{
		VirtualNetworks:     &virtualNetworksAdapter{client: networkFactory.NewVirtualNetworksClient()},
		Subnets:             &subnetsAdapter{client: networkFactory.NewSubnetsClient()},
		SecurityGroups:      &securityGroupsAdapter{client: networkFactory.NewSecurityGroupsClient()},
		PublicIPs:           &publicIPsAdapter{client: networkFactory.NewPublicIPAddressesClient()},
		Interfaces:          &interfacesAdapter{client: networkFactory.NewInterfacesClient()},
		ApplicationGateways: &applicationGatewaysAdapter{client: networkFactory.NewApplicationGatewaysClient()},
		Disks:               &disksAdapter{client: computeFactory.NewDisksClient()},
		VirtualMachines:     &virtualMachinesAdapter{client: computeFactory.NewVirtualMachinesClient()},
		StorageAccounts:     &storageAccountsAdapter{client: storageFactory.NewAccountsClient()},
		FileShares:          &fileSharesAdapter{client: storageFactory.NewFileSharesClient()},
		Identities:          &identitiesAdapter{client: msiFactory.NewUserAssignedIdentitiesClient()},
		Vaults:              &vaultsAdapter{client: keyvaultFactory.NewVaultsClient()},
		RoleAssignments:     &roleAssignmentsAdapter{client: authFactory.NewRoleAssignmentsClient()},
	}, nil
}

type virtualNetworksAdapter struct {
	client *armnetwork.VirtualNetworksClient
}

func (a *virtualNetworksAdapter) Get(ctx context.Context, resourceGroup, name string) (armnetwork.VirtualNetwork, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.VirtualNetwork, err
}

func (a *virtualNetworksAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, vnet armnetwork.VirtualNetwork) (armnetwork.VirtualNetwork, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, vnet, nil)
	if err != nil {
		return armnetwork.VirtualNetwork{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.VirtualNetwork, err
}

func (a *virtualNetworksAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type subnetsAdapter struct {
	client *armnetwork.SubnetsClient
}

func (a *subnetsAdapter) Get(ctx context.Context, resourceGroup, vnetName, name string) (armnetwork.Subnet, error) {
	resp, err := a.client.Get(ctx, resourceGroup, vnetName, name, nil)
	return resp.Subnet, err
}

func (a *subnetsAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, vnetName, name string, subnet armnetwork.Subnet) (armnetwork.Subnet, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, vnetName, name, subnet, nil)
	if err != nil {
		return armnetwork.Subnet{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.Subnet, err
}

type securityGroupsAdapter struct {
	client *armnetwork.SecurityGroupsClient
}

func (a *securityGroupsAdapter) Get(ctx context.Context, resourceGroup, name string) (armnetwork.SecurityGroup, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.SecurityGroup, err
}

func (a *securityGroupsAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, nsg armnetwork.SecurityGroup) (armnetwork.SecurityGroup, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, nsg, nil)
	if err != nil {
		return armnetwork.SecurityGroup{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.SecurityGroup, err
}

func (a *securityGroupsAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type publicIPsAdapter struct {
	client *armnetwork.PublicIPAddressesClient
}

func (a *publicIPsAdapter) Get(ctx context.Context, resourceGroup, name string) (armnetwork.PublicIPAddress, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.PublicIPAddress, err
}

func (a *publicIPsAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, ip armnetwork.PublicIPAddress) (armnetwork.PublicIPAddress, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, ip, nil)
	if err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.PublicIPAddress, err
}

func (a *publicIPsAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type interfacesAdapter struct {
	client *armnetwork.InterfacesClient
}

func (a *interfacesAdapter) Get(ctx context.Context, resourceGroup, name string) (armnetwork.Interface, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.Interface, err
}

func (a *interfacesAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, nic armnetwork.Interface) (armnetwork.Interface, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, nic, nil)
	if err != nil {
		return armnetwork.Interface{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.Interface, err
}

func (a *interfacesAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type applicationGatewaysAdapter struct {
	client *armnetwork.ApplicationGatewaysClient
}

func (a *applicationGatewaysAdapter) Get(ctx context.Context, resourceGroup, name string) (armnetwork.ApplicationGateway, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.ApplicationGateway, err
}

func (a *applicationGatewaysAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, gateway armnetwork.ApplicationGateway) (armnetwork.ApplicationGateway, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, gateway, nil)
	if err != nil {
		return armnetwork.ApplicationGateway{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.ApplicationGateway, err
}

func (a *applicationGatewaysAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type disksAdapter struct {
	client *armcompute.DisksClient
}

func (a *disksAdapter) Get(ctx context.Context, resourceGroup, name string) (armcompute.Disk, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.Disk, err
}

func (a *disksAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, disk armcompute.Disk) (armcompute.Disk, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, disk, nil)
	if err != nil {
		return armcompute.Disk{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.Disk, err
}

func (a *disksAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type virtualMachinesAdapter struct {
	client *armcompute.VirtualMachinesClient
}

func (a *virtualMachinesAdapter) Get(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachine, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.VirtualMachine, err
}

func (a *virtualMachinesAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, vm armcompute.VirtualMachine) (armcompute.VirtualMachine, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, vm, nil)
	if err != nil {
		return armcompute.VirtualMachine{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.VirtualMachine, err
}

func (a *virtualMachinesAdapter) Delete(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDelete(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (a *virtualMachinesAdapter) Start(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginStart(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (a *virtualMachinesAdapter) Deallocate(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginDeallocate(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (a *virtualMachinesAdapter) Restart(ctx context.Context, resourceGroup, name string) error {
	poller, err := a.client.BeginRestart(ctx, resourceGroup, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (a *virtualMachinesAdapter) InstanceView(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachineInstanceView, error) {
	resp, err := a.client.InstanceView(ctx, resourceGroup, name, nil)
	return resp.VirtualMachineInstanceView, err
}

func (a *virtualMachinesAdapter) RunCommand(ctx context.Context, resourceGroup, name string, input armcompute.RunCommandInput) (armcompute.RunCommandResult, error) {
	poller, err := a.client.BeginRunCommand(ctx, resourceGroup, name, input, nil)
	if err != nil {
		return armcompute.RunCommandResult{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.RunCommandResult, err
}

type storageAccountsAdapter struct {
	client *armstorage.AccountsClient
}

func (a *storageAccountsAdapter) GetProperties(ctx context.Context, resourceGroup, name string) (armstorage.Account, error) {
	resp, err := a.client.GetProperties(ctx, resourceGroup, name, nil)
	return resp.Account, err
}

func (a *storageAccountsAdapter) Create(ctx context.Context, resourceGroup, name string, params armstorage.AccountCreateParameters) (armstorage.Account, error) {
	poller, err := a.client.BeginCreate(ctx, resourceGroup, name, params, nil)
	if err != nil {
		return armstorage.Account{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.Account, err
}

type fileSharesAdapter struct {
	client *armstorage.FileSharesClient
}

func (a *fileSharesAdapter) Get(ctx context.Context, resourceGroup, accountName, name string) (armstorage.FileShare, error) {
	resp, err := a.client.Get(ctx, resourceGroup, accountName, name, nil)
	return resp.FileShare, err
}

func (a *fileSharesAdapter) Create(ctx context.Context, resourceGroup, accountName, name string, share armstorage.FileShare) (armstorage.FileShare, error) {
	resp, err := a.client.Create(ctx, resourceGroup, accountName, name, share, nil)
	return resp.FileShare, err
}

type identitiesAdapter struct {
	client *armmsi.UserAssignedIdentitiesClient
}

func (a *identitiesAdapter) Get(ctx context.Context, resourceGroup, name string) (armmsi.Identity, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.Identity, err
}

func (a *identitiesAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, identity armmsi.Identity) (armmsi.Identity, error) {
	resp, err := a.client.CreateOrUpdate(ctx, resourceGroup, name, identity, nil)
	return resp.Identity, err
}

type vaultsAdapter struct {
	client *armkeyvault.VaultsClient
}

func (a *vaultsAdapter) Get(ctx context.Context, resourceGroup, name string) (armkeyvault.Vault, error) {
	resp, err := a.client.Get(ctx, resourceGroup, name, nil)
	return resp.Vault, err
}

func (a *vaultsAdapter) CreateOrUpdate(ctx context.Context, resourceGroup, name string, params armkeyvault.VaultCreateOrUpdateParameters) (armkeyvault.Vault, error) {
	poller, err := a.client.BeginCreateOrUpdate(ctx, resourceGroup, name, params, nil)
	if err != nil {
		return armkeyvault.Vault{}, err
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	return resp.Vault, err
}

type roleAssignmentsAdapter struct {
	client *armauthorization.RoleAssignmentsClient
}

func (a *roleAssignmentsAdapter) Create(ctx context.Context, scope, name string, params armauthorization.RoleAssignmentCreateParameters) (armauthorization.RoleAssignment, error) {
	resp, err := a.client.Create(ctx, scope, name, params, nil)
	return resp.RoleAssignment, err
}
