package azurevm

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/provision"
)

const (
	healthProbePath      = "/health"
	healthProbeInterval  = 30
	healthProbeStrikes   = 3
	backendPoolName      = "gateway-backend"
	frontendIPConfigName = "public-frontend"
	frontendPortName     = "port-http"
	httpSettingsName     = "gateway-settings"
	httpListenerName     = "listener-http"
	routingRuleName      = "route-gateway"
	gatewayIPConfigName  = "agw-ip-config"
	healthProbeName      = "gateway-health"
)

// AppGatewayManager provisions the Application Gateway fronting the VM
// and keeps its backend pool pointed at the VM's private IP.
type AppGatewayManager struct {
	gateways applicationGatewaysAPI

	subscriptionID string
	resourceGroup  string
	location       string
}

// NewAppGatewayManager creates an app-gateway manager.
func NewAppGatewayManager(clients *Clients, subscriptionID, resourceGroup, location string) *AppGatewayManager {
	return &AppGatewayManager{
		gateways:       clients.ApplicationGateways,
		subscriptionID: subscriptionID,
		resourceGroup:  resourceGroup,
		location:       location,
	}
}

// EnsureAppGateway ensures the Application Gateway exists: public
// frontend, TCP port 80 listener, health-probed backend settings
// targeting the gateway port.
func (m *AppGatewayManager) EnsureAppGateway(ctx context.Context, name, subnetID, publicIPID string, gatewayPort int) (armnetwork.ApplicationGateway, error) {
	return provision.Ensure(ctx, "application gateway "+name,
		func(ctx context.Context) (armnetwork.ApplicationGateway, error) {
			gateway, err := m.gateways.Get(ctx, m.resourceGroup, name)
			return gateway, classifyAzureError("get application gateway", name, err)
		},
		func(ctx context.Context) (armnetwork.ApplicationGateway, error) {
			gateway, err := m.gateways.CreateOrUpdate(ctx, m.resourceGroup, name, m.buildGateway(name, subnetID, publicIPID, gatewayPort))
			return gateway, classifyAzureError("create application gateway", name, err)
		},
	)
}

func (m *AppGatewayManager) buildGateway(name, subnetID, publicIPID string, gatewayPort int) armnetwork.ApplicationGateway {
	subID := func(subType, subName string) *string {
		return to.Ptr(appGatewaySubResourceID(m.subscriptionID, m.resourceGroup, name, subType, subName))
	}

	return armnetwork.ApplicationGateway{
		Location: to.Ptr(m.location),
		Tags:     ownerTags(),
		Properties: &armnetwork.ApplicationGatewayPropertiesFormat{
			SKU: &armnetwork.ApplicationGatewaySKU{
				Name:     to.Ptr(armnetwork.ApplicationGatewaySKUNameStandardV2),
				Tier:     to.Ptr(armnetwork.ApplicationGatewayTierStandardV2),
				Capacity: to.Ptr(int32(1)),
			},
			GatewayIPConfigurations: []*armnetwork.ApplicationGatewayIPConfiguration{
				{
					Name: to.Ptr(gatewayIPConfigName),
					Properties: &armnetwork.ApplicationGatewayIPConfigurationPropertiesFormat{
						Subnet: &armnetwork.SubResource{ID: to.Ptr(subnetID)},
					},
				},
			},
			FrontendIPConfigurations: []*armnetwork.ApplicationGatewayFrontendIPConfiguration{
				{
					Name: to.Ptr(frontendIPConfigName),
					Properties: &armnetwork.ApplicationGatewayFrontendIPConfigurationPropertiesFormat{
						PublicIPAddress: &armnetwork.SubResource{ID: to.Ptr(publicIPID)},
					},
				},
			},
			FrontendPorts: []*armnetwork.ApplicationGatewayFrontendPort{
				{
					Name:       to.Ptr(frontendPortName),
					Properties: &armnetwork.ApplicationGatewayFrontendPortPropertiesFormat{Port: to.Ptr(int32(80))},
				},
			},
			Probes: []*armnetwork.ApplicationGatewayProbe{
				{
					Name: to.Ptr(healthProbeName),
					Properties: &armnetwork.ApplicationGatewayProbePropertiesFormat{
						Protocol:                            to.Ptr(armnetwork.ApplicationGatewayProtocolHTTP),
						Path:                                to.Ptr(healthProbePath),
						Interval:                            to.Ptr(int32(healthProbeInterval)),
						Timeout:                             to.Ptr(int32(healthProbeInterval)),
						UnhealthyThreshold:                  to.Ptr(int32(healthProbeStrikes)),
						PickHostNameFromBackendHTTPSettings: to.Ptr(true),
					},
				},
			},
			BackendAddressPools: []*armnetwork.ApplicationGatewayBackendAddressPool{
				{
					Name:       to.Ptr(backendPoolName),
					Properties: &armnetwork.ApplicationGatewayBackendAddressPoolPropertiesFormat{},
				},
			},
			BackendHTTPSettingsCollection: []*armnetwork.ApplicationGatewayBackendHTTPSettings{
				{
					Name: to.Ptr(httpSettingsName),
					Properties: &armnetwork.ApplicationGatewayBackendHTTPSettingsPropertiesFormat{
						Port:                           to.Ptr(int32(gatewayPort)),
						Protocol:                       to.Ptr(armnetwork.ApplicationGatewayProtocolHTTP),
						PickHostNameFromBackendAddress: to.Ptr(true),
						Probe:                          &armnetwork.SubResource{ID: subID("probes", healthProbeName)},
					},
				},
			},
			HTTPListeners: []*armnetwork.ApplicationGatewayHTTPListener{
				{
					Name: to.Ptr(httpListenerName),
					Properties: &armnetwork.ApplicationGatewayHTTPListenerPropertiesFormat{
						FrontendIPConfiguration: &armnetwork.SubResource{ID: subID("frontendIPConfigurations", frontendIPConfigName)},
						FrontendPort:            &armnetwork.SubResource{ID: subID("frontendPorts", frontendPortName)},
						Protocol:                to.Ptr(armnetwork.ApplicationGatewayProtocolHTTP),
					},
				},
			},
			RequestRoutingRules: []*armnetwork.ApplicationGatewayRequestRoutingRule{
				{
					Name: to.Ptr(routingRuleName),
					Properties: &armnetwork.ApplicationGatewayRequestRoutingRulePropertiesFormat{
						RuleType:            to.Ptr(armnetwork.ApplicationGatewayRequestRoutingRuleTypeBasic),
						Priority:            to.Ptr(int32(100)),
						HTTPListener:        &armnetwork.SubResource{ID: subID("httpListeners", httpListenerName)},
						BackendAddressPool:  &armnetwork.SubResource{ID: subID("backendAddressPools", backendPoolName)},
						BackendHTTPSettings: &armnetwork.SubResource{ID: subID("backendHttpSettingsCollection", httpSettingsName)},
					},
				},
			},
		},
	}
}

// UpdateBackendPool points the backend pool at the VM's private IP. This
// is advisory: the gateway may not exist yet on the first pass, and a
// failed pool update must never fail the install.
func (m *AppGatewayManager) UpdateBackendPool(ctx context.Context, name, vmPrivateIP string) {
	provision.Advisory(ctx, "update backend pool of "+name, func(ctx context.Context) error {
		gateway, err := m.gateways.Get(ctx, m.resourceGroup, name)
		if err != nil {
			return classifyAzureError("get application gateway", name, err)
		}
		if gateway.Properties == nil || len(gateway.Properties.BackendAddressPools) == 0 {
			return fmt.Errorf("application gateway %s has no backend pool", name)
		}

		gateway.Properties.BackendAddressPools[0].Properties = &armnetwork.ApplicationGatewayBackendAddressPoolPropertiesFormat{
			BackendAddresses: []*armnetwork.ApplicationGatewayBackendAddress{
				{IPAddress: to.Ptr(vmPrivateIP)},
			},
		}
		if _, err := m.gateways.CreateOrUpdate(ctx, m.resourceGroup, name, gateway); err != nil {
			return classifyAzureError("update application gateway", name, err)
		}
		log.Info().Str("gateway", name).Str("backend", vmPrivateIP).Msg("backend pool updated")
		return nil
	})
}

// FrontendAddress returns the gateway's public address, preferring the
// DNS name over the raw IP.
func (m *AppGatewayManager) FrontendAddress(ctx context.Context, publicIPs publicIPsAPI, publicIPName string) (string, error) {
	ip, err := publicIPs.Get(ctx, m.resourceGroup, publicIPName)
	if err != nil {
		return "", classifyAzureError("get public ip", publicIPName, err)
	}
	if ip.Properties != nil {
		if ip.Properties.DNSSettings != nil && ip.Properties.DNSSettings.Fqdn != nil {
			return *ip.Properties.DNSSettings.Fqdn, nil
		}
		if ip.Properties.IPAddress != nil {
			return *ip.Properties.IPAddress, nil
		}
	}
	return "", fmt.Errorf("public ip %s has no address yet", publicIPName)
}
