package azurevm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"

	"github.com/clawster/clawster/pkg/provision"
)

const dataDiskSizeGB = 32

// ComputeManager provisions the VM, its NIC, and its data disk, and
// drives the VM's power lifecycle.
type ComputeManager struct {
	disks disksAPI
	nics  interfacesAPI
	vms   virtualMachinesAPI

	resourceGroup string
	location      string
}

// NewComputeManager creates a compute manager for a resource group.
func NewComputeManager(clients *Clients, resourceGroup, location string) *ComputeManager {
	return &ComputeManager{
		disks:         clients.Disks,
		nics:          clients.Interfaces,
		vms:           clients.VirtualMachines,
		resourceGroup: resourceGroup,
		location:      location,
	}
}

// EnsureDataDisk ensures the VM's persistent data disk exists.
func (m *ComputeManager) EnsureDataDisk(ctx context.Context, name string) (armcompute.Disk, error) {
	return provision.Ensure(ctx, "disk "+name,
		func(ctx context.Context) (armcompute.Disk, error) {
			disk, err := m.disks.Get(ctx, m.resourceGroup, name)
			return disk, classifyAzureError("get disk", name, err)
		},
		func(ctx context.Context) (armcompute.Disk, error) {
			disk, err := m.disks.CreateOrUpdate(ctx, m.resourceGroup, name, armcompute.Disk{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				SKU: &armcompute.DiskSKU{
					Name: to.Ptr(armcompute.DiskStorageAccountTypesStandardSSDLRS),
				},
				Properties: &armcompute.DiskProperties{
					DiskSizeGB: to.Ptr(int32(dataDiskSizeGB)),
					CreationData: &armcompute.CreationData{
						CreateOption: to.Ptr(armcompute.DiskCreateOptionEmpty),
					},
				},
			})
			return disk, classifyAzureError("create disk", name, err)
		},
	)
}

// EnsureNIC ensures the VM's network interface exists. publicIPID may be
// nil for the gateway-only topology, where the VM itself has no public
// address.
func (m *ComputeManager) EnsureNIC(ctx context.Context, name string, subnetID string, publicIPID *string) (armnetwork.Interface, error) {
	return provision.Ensure(ctx, "nic "+name,
		func(ctx context.Context) (armnetwork.Interface, error) {
			nic, err := m.nics.Get(ctx, m.resourceGroup, name)
			return nic, classifyAzureError("get nic", name, err)
		},
		func(ctx context.Context) (armnetwork.Interface, error) {
			ipConfig := &armnetwork.InterfaceIPConfiguration{
				Name: to.Ptr("primary"),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
				},
			}
			if publicIPID != nil {
				ipConfig.Properties.PublicIPAddress = &armnetwork.PublicIPAddress{ID: publicIPID}
			}
			nic, err := m.nics.CreateOrUpdate(ctx, m.resourceGroup, name, armnetwork.Interface{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Properties: &armnetwork.InterfacePropertiesFormat{
					IPConfigurations: []*armnetwork.InterfaceIPConfiguration{ipConfig},
				},
			})
			return nic, classifyAzureError("create nic", name, err)
		},
	)
}

// VMSpec carries the inputs for EnsureVM.
type VMSpec struct {
	Name          string
	Size          string
	AdminUsername string
	SSHPublicKey  string
	NICID         string
	DataDiskID    string
	IdentityID    string
	CloudInit     string
}

// EnsureVM ensures the gateway VM exists: Ubuntu image, cloud-init
// payload in customData, data disk attached, user-assigned identity.
func (m *ComputeManager) EnsureVM(ctx context.Context, spec VMSpec) (armcompute.VirtualMachine, error) {
	return provision.Ensure(ctx, "vm "+spec.Name,
		func(ctx context.Context) (armcompute.VirtualMachine, error) {
			vm, err := m.vms.Get(ctx, m.resourceGroup, spec.Name)
			return vm, classifyAzureError("get vm", spec.Name, err)
		},
		func(ctx context.Context) (armcompute.VirtualMachine, error) {
			vm := armcompute.VirtualMachine{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Properties: &armcompute.VirtualMachineProperties{
					HardwareProfile: &armcompute.HardwareProfile{
						VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(spec.Size)),
					},
					StorageProfile: &armcompute.StorageProfile{
						ImageReference: &armcompute.ImageReference{
							Publisher: to.Ptr("Canonical"),
							Offer:     to.Ptr("0001-com-ubuntu-server-jammy"),
							SKU:       to.Ptr("22_04-lts-gen2"),
							Version:   to.Ptr("latest"),
						},
						OSDisk: &armcompute.OSDisk{
							CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
							ManagedDisk: &armcompute.ManagedDiskParameters{
								StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardSSDLRS),
							},
						},
						DataDisks: []*armcompute.DataDisk{
							{
								Lun:          to.Ptr(int32(0)),
								CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesAttach),
								ManagedDisk:  &armcompute.ManagedDiskParameters{ID: to.Ptr(spec.DataDiskID)},
							},
						},
					},
					OSProfile: &armcompute.OSProfile{
						ComputerName:  to.Ptr(spec.Name),
						AdminUsername: to.Ptr(spec.AdminUsername),
						CustomData:    to.Ptr(encodeCustomData(spec.CloudInit)),
						LinuxConfiguration: &armcompute.LinuxConfiguration{
							DisablePasswordAuthentication: to.Ptr(true),
							SSH: &armcompute.SSHConfiguration{
								PublicKeys: []*armcompute.SSHPublicKey{
									{
										Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", spec.AdminUsername)),
										KeyData: to.Ptr(spec.SSHPublicKey),
									},
								},
							},
						},
					},
					NetworkProfile: &armcompute.NetworkProfile{
						NetworkInterfaces: []*armcompute.NetworkInterfaceReference{
							{ID: to.Ptr(spec.NICID)},
						},
					},
				},
			}
			if spec.IdentityID != "" {
				vm.Identity = &armcompute.VirtualMachineIdentity{
					Type: to.Ptr(armcompute.ResourceIdentityTypeUserAssigned),
					UserAssignedIdentities: map[string]*armcompute.UserAssignedIdentitiesValue{
						spec.IdentityID: {},
					},
				}
			}
			created, err := m.vms.CreateOrUpdate(ctx, m.resourceGroup, spec.Name, vm)
			return created, classifyAzureError("create vm", spec.Name, err)
		},
	)
}

// Start powers the VM on.
func (m *ComputeManager) Start(ctx context.Context, name string) error {
	if err := m.vms.Start(ctx, m.resourceGroup, name); err != nil {
		return fmt.Errorf("failed to start vm %s: %w", name, err)
	}
	return nil
}

// Stop deallocates the VM so compute stops billing.
func (m *ComputeManager) Stop(ctx context.Context, name string) error {
	if err := m.vms.Deallocate(ctx, m.resourceGroup, name); err != nil {
		return fmt.Errorf("failed to deallocate vm %s: %w", name, err)
	}
	return nil
}

// Restart restarts the VM.
func (m *ComputeManager) Restart(ctx context.Context, name string) error {
	if err := m.vms.Restart(ctx, m.resourceGroup, name); err != nil {
		return fmt.Errorf("failed to restart vm %s: %w", name, err)
	}
	return nil
}

// PowerState reads the VM's power state from its instance view. Returns
// the bare state string, e.g. "running" or "deallocated".
func (m *ComputeManager) PowerState(ctx context.Context, name string) (string, error) {
	view, err := m.vms.InstanceView(ctx, m.resourceGroup, name)
	if err != nil {
		return "", classifyAzureError("instance view", name, err)
	}
	for _, status := range view.Statuses {
		if status.Code == nil {
			continue
		}
		if strings.HasPrefix(*status.Code, "PowerState/") {
			return strings.TrimPrefix(*status.Code, "PowerState/"), nil
		}
	}
	return "", fmt.Errorf("vm %s reported no power state", name)
}

// PrivateIP resolves the VM's private IP from its NIC.
func (m *ComputeManager) PrivateIP(ctx context.Context, nicName string) (string, error) {
	nic, err := m.nics.Get(ctx, m.resourceGroup, nicName)
	if err != nil {
		return "", classifyAzureError("get nic", nicName, err)
	}
	if nic.Properties == nil {
		return "", fmt.Errorf("nic %s has no properties", nicName)
	}
	for _, ipConfig := range nic.Properties.IPConfigurations {
		if ipConfig.Properties != nil && ipConfig.Properties.PrivateIPAddress != nil {
			return *ipConfig.Properties.PrivateIPAddress, nil
		}
	}
	return "", fmt.Errorf("nic %s has no private IP address", nicName)
}

// RunScript executes a shell script on the VM and returns its output.
func (m *ComputeManager) RunScript(ctx context.Context, vmName string, script []string) (string, error) {
	var lines []*string
	for _, line := range script {
		lines = append(lines, to.Ptr(line))
	}
	result, err := m.vms.RunCommand(ctx, m.resourceGroup, vmName, armcompute.RunCommandInput{
		CommandID: to.Ptr("RunShellScript"),
		Script:    lines,
	})
	if err != nil {
		return "", classifyAzureError("run command", vmName, err)
	}
	var output strings.Builder
	for _, status := range result.Value {
		if status.Message != nil {
			output.WriteString(*status.Message)
		}
	}
	return output.String(), nil
}
