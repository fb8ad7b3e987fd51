package azurevm

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"

	"github.com/clawster/clawster/pkg/provision"
)

const (
	vnetAddressSpace  = "10.20.0.0/16"
	vmSubnetPrefix    = "10.20.1.0/24"
	agwSubnetPrefix   = "10.20.2.0/24"
	gatewayProbeRange = "65200-65535"
)

// NetworkManager provisions the profile's virtual network, security
// group, subnets, and static public IP.
type NetworkManager struct {
	vnets     virtualNetworksAPI
	subnets   subnetsAPI
	nsgs      securityGroupsAPI
	publicIPs publicIPsAPI

	resourceGroup string
	location      string
}

// NewNetworkManager creates a network manager for a resource group.
func NewNetworkManager(clients *Clients, resourceGroup, location string) *NetworkManager {
	return &NetworkManager{
		vnets:         clients.VirtualNetworks,
		subnets:       clients.Subnets,
		nsgs:          clients.SecurityGroups,
		publicIPs:     clients.PublicIPs,
		resourceGroup: resourceGroup,
		location:      location,
	}
}

func ownerTags() map[string]*string {
	return map[string]*string{provision.OwnerTagKey: to.Ptr(provision.OwnerTag)}
}

// EnsureVNet ensures the profile's virtual network exists.
func (m *NetworkManager) EnsureVNet(ctx context.Context, name string) (armnetwork.VirtualNetwork, error) {
	return provision.Ensure(ctx, "vnet "+name,
		func(ctx context.Context) (armnetwork.VirtualNetwork, error) {
			vnet, err := m.vnets.Get(ctx, m.resourceGroup, name)
			return vnet, classifyAzureError("get vnet", name, err)
		},
		func(ctx context.Context) (armnetwork.VirtualNetwork, error) {
			vnet, err := m.vnets.CreateOrUpdate(ctx, m.resourceGroup, name, armnetwork.VirtualNetwork{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Properties: &armnetwork.VirtualNetworkPropertiesFormat{
					AddressSpace: &armnetwork.AddressSpace{
						AddressPrefixes: []*string{to.Ptr(vnetAddressSpace)},
					},
				},
			})
			return vnet, classifyAzureError("create vnet", name, err)
		},
	)
}

// securityRules builds the NSG rule set: explicit allows for HTTP, HTTPS,
// the gateway port, the Application Gateway manager probe range, and the
// Azure load balancer, with a terminal deny. Priorities are first-match-
// wins, enforced by the provider.
func securityRules(gatewayPort int) []*armnetwork.SecurityRule {
	allow := func(name string, priority int32, source, portRange string) *armnetwork.SecurityRule {
		return &armnetwork.SecurityRule{
			Name: to.Ptr(name),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Priority:                 to.Ptr(priority),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirectionInbound),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccessAllow),
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocolTCP),
				SourceAddressPrefix:      to.Ptr(source),
				SourcePortRange:          to.Ptr("*"),
				DestinationAddressPrefix: to.Ptr("*"),
				DestinationPortRange:     to.Ptr(portRange),
			},
		}
	}

	return []*armnetwork.SecurityRule{
		allow("allow-http", 100, "*", "80"),
		allow("allow-https", 110, "*", "443"),
		allow("allow-gateway", 120, "*", fmt.Sprintf("%d", gatewayPort)),
		allow("allow-agw-manager", 300, "GatewayManager", gatewayProbeRange),
		allow("allow-azure-lb", 310, "AzureLoadBalancer", "*"),
		{
			Name: to.Ptr("deny-all-inbound"),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Priority:                 to.Ptr(int32(4000)),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirectionInbound),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccessDeny),
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocolAsterisk),
				SourceAddressPrefix:      to.Ptr("*"),
				SourcePortRange:          to.Ptr("*"),
				DestinationAddressPrefix: to.Ptr("*"),
				DestinationPortRange:     to.Ptr("*"),
			},
		},
	}
}

// EnsureNSG ensures the deny-by-default security group exists.
func (m *NetworkManager) EnsureNSG(ctx context.Context, name string, gatewayPort int) (armnetwork.SecurityGroup, error) {
	return provision.Ensure(ctx, "nsg "+name,
		func(ctx context.Context) (armnetwork.SecurityGroup, error) {
			nsg, err := m.nsgs.Get(ctx, m.resourceGroup, name)
			return nsg, classifyAzureError("get nsg", name, err)
		},
		func(ctx context.Context) (armnetwork.SecurityGroup, error) {
			nsg, err := m.nsgs.CreateOrUpdate(ctx, m.resourceGroup, name, armnetwork.SecurityGroup{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				Properties: &armnetwork.SecurityGroupPropertiesFormat{
					SecurityRules: securityRules(gatewayPort),
				},
			})
			return nsg, classifyAzureError("create nsg", name, err)
		},
	)
}

// EnsureVMSubnet ensures the VM subnet exists with the NSG attached.
func (m *NetworkManager) EnsureVMSubnet(ctx context.Context, vnetName, name string, nsgID *string) (armnetwork.Subnet, error) {
	return provision.Ensure(ctx, "subnet "+name,
		func(ctx context.Context) (armnetwork.Subnet, error) {
			subnet, err := m.subnets.Get(ctx, m.resourceGroup, vnetName, name)
			return subnet, classifyAzureError("get subnet", name, err)
		},
		func(ctx context.Context) (armnetwork.Subnet, error) {
			properties := &armnetwork.SubnetPropertiesFormat{
				AddressPrefix: to.Ptr(vmSubnetPrefix),
			}
			if nsgID != nil {
				properties.NetworkSecurityGroup = &armnetwork.SecurityGroup{ID: nsgID}
			}
			subnet, err := m.subnets.CreateOrUpdate(ctx, m.resourceGroup, vnetName, name, armnetwork.Subnet{
				Properties: properties,
			})
			return subnet, classifyAzureError("create subnet", name, err)
		},
	)
}

// EnsureAppGatewaySubnet ensures the Application Gateway subnet exists.
// No NSG is attached; the provider requires the subnet to stay open for
// its own management traffic.
func (m *NetworkManager) EnsureAppGatewaySubnet(ctx context.Context, vnetName, name string) (armnetwork.Subnet, error) {
	return provision.Ensure(ctx, "subnet "+name,
		func(ctx context.Context) (armnetwork.Subnet, error) {
			subnet, err := m.subnets.Get(ctx, m.resourceGroup, vnetName, name)
			return subnet, classifyAzureError("get subnet", name, err)
		},
		func(ctx context.Context) (armnetwork.Subnet, error) {
			subnet, err := m.subnets.CreateOrUpdate(ctx, m.resourceGroup, vnetName, name, armnetwork.Subnet{
				Properties: &armnetwork.SubnetPropertiesFormat{
					AddressPrefix: to.Ptr(agwSubnetPrefix),
				},
			})
			return subnet, classifyAzureError("create subnet", name, err)
		},
	)
}

// EnsurePublicIP ensures a static standard-SKU public IP with a stable
// DNS label exists.
func (m *NetworkManager) EnsurePublicIP(ctx context.Context, name, dnsLabel string) (armnetwork.PublicIPAddress, error) {
	return provision.Ensure(ctx, "public ip "+name,
		func(ctx context.Context) (armnetwork.PublicIPAddress, error) {
			ip, err := m.publicIPs.Get(ctx, m.resourceGroup, name)
			return ip, classifyAzureError("get public ip", name, err)
		},
		func(ctx context.Context) (armnetwork.PublicIPAddress, error) {
			ip, err := m.publicIPs.CreateOrUpdate(ctx, m.resourceGroup, name, armnetwork.PublicIPAddress{
				Location: to.Ptr(m.location),
				Tags:     ownerTags(),
				SKU: &armnetwork.PublicIPAddressSKU{
					Name: to.Ptr(armnetwork.PublicIPAddressSKUNameStandard),
				},
				Properties: &armnetwork.PublicIPAddressPropertiesFormat{
					PublicIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodStatic),
					DNSSettings: &armnetwork.PublicIPAddressDNSSettings{
						DomainNameLabel: to.Ptr(dnsLabel),
					},
				},
			})
			return ip, classifyAzureError("create public ip", name, err)
		},
	)
}
