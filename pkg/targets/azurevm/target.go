package azurevm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
)

// Target manages the gateway on an Azure VM, composed from the four
// managers. The shared infrastructure (storage, identity, vault) is
// group-scoped and survives Destroy: other VMs in the group depend on it.
type Target struct {
	config  *Config
	clients *Clients
	names   Names

	network     *NetworkManager
	compute     *ComputeManager
	appGateway  *AppGatewayManager
	sharedInfra *SharedInfraManager

	gatewayPort int
	// Resolved frontend address, immutable for the target's lifetime.
	frontendAddr string
}

// NewTarget creates an Azure VM deployment target.
func NewTarget(config *Config, clients *Clients) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid azure vm config: %w", err)
	}
	if clients == nil {
		return nil, fmt.Errorf("azure clients are required")
	}

	return &Target{
		config:      config,
		clients:     clients,
		names:       DeriveNames(config.SubscriptionID, config.ResourceGroup, config.ProfileName),
		network:     NewNetworkManager(clients, config.ResourceGroup, config.Location),
		compute:     NewComputeManager(clients, config.ResourceGroup, config.Location),
		appGateway:  NewAppGatewayManager(clients, config.SubscriptionID, config.ResourceGroup, config.Location),
		sharedInfra: NewSharedInfraManager(clients, config.SubscriptionID, config.ResourceGroup, config.Location, config.TenantID),
		gatewayPort: DefaultGatewayPort,
	}, nil
}

// Install provisions the full resource set. Every step is ensure-or-
// create, so a crashed install is retried by calling Install again.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("resource-group", t.config.ResourceGroup).
		Msg("provisioning azure vm gateway")

	infra, err := t.sharedInfra.EnsureAll(ctx, t.names)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure shared infrastructure: %v", err)}
	}

	if _, err := t.network.EnsureVNet(ctx, t.names.VNet); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure vnet: %v", err)}
	}
	nsg, err := t.network.EnsureNSG(ctx, t.names.NSG, port)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure nsg: %v", err)}
	}
	vmSubnet, err := t.network.EnsureVMSubnet(ctx, t.names.VNet, t.names.VMSubnet, nsg.ID)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure vm subnet: %v", err)}
	}
	publicIP, err := t.network.EnsurePublicIP(ctx, t.names.PublicIP, vmDNSLabel(t.config.ProfileName))
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure public ip: %v", err)}
	}

	disk, err := t.compute.EnsureDataDisk(ctx, t.names.DataDisk)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure data disk: %v", err)}
	}

	// Gateway-only topology keeps the VM off the public internet.
	var nicPublicIP *string
	if !t.config.EnableAppGateway {
		nicPublicIP = publicIP.ID
	}
	nic, err := t.compute.EnsureNIC(ctx, t.names.NIC, deref(vmSubnet.ID), nicPublicIP)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure nic: %v", err)}
	}

	vm, err := t.compute.EnsureVM(ctx, VMSpec{
		Name:          t.names.VM,
		Size:          t.config.VMSize,
		AdminUsername: t.config.AdminUsername,
		SSHPublicKey:  t.config.SSHPublicKey,
		NICID:         deref(nic.ID),
		DataDiskID:    deref(disk.ID),
		IdentityID:    infra.IdentityID,
		CloudInit:     cloudInit(t.config.ProfileName, port, opts.Version),
	})
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure vm: %v", err)}
	}

	if t.config.EnableAppGateway {
		agwSubnet, err := t.network.EnsureAppGatewaySubnet(ctx, t.names.VNet, t.names.AppGatewaySubnet)
		if err != nil {
			return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure app gateway subnet: %v", err)}
		}
		if _, err := t.appGateway.EnsureAppGateway(ctx, t.names.AppGateway, deref(agwSubnet.ID), deref(publicIP.ID), port); err != nil {
			return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure application gateway: %v", err)}
		}
		if privateIP, err := t.compute.PrivateIP(ctx, t.names.NIC); err == nil {
			t.appGateway.UpdateBackendPool(ctx, t.names.AppGateway, privateIP)
		}
	}

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("gateway vm provisioned in %s", t.config.ResourceGroup),
		InstanceID:  deref(vm.ID),
		ServiceName: t.names.VM,
	}
}

// Configure writes the transformed configuration onto the VM through the
// run-command channel. The payload travels base64-encoded so shell
// quoting cannot corrupt it.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}
	if payload.GatewayPort > 0 {
		t.gatewayPort = payload.GatewayPort
	}

	encoded := base64.StdEncoding.EncodeToString(rendered)
	script := []string{
		"mkdir -p /etc/openclaw",
		fmt.Sprintf("echo %s | base64 -d > /etc/openclaw/openclaw.json", encoded),
		"chmod 600 /etc/openclaw/openclaw.json",
	}
	if _, err := t.compute.RunScript(ctx, t.names.VM, script); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to write config on vm: %v", err)}
	}

	return target.ConfigureResult{
		Success:         true,
		Message:         "configuration written to vm",
		RequiresRestart: true,
	}
}

// Start powers the VM on.
func (t *Target) Start(ctx context.Context) error {
	return t.compute.Start(ctx, t.names.VM)
}

// Stop deallocates the VM.
func (t *Target) Stop(ctx context.Context) error {
	return t.compute.Stop(ctx, t.names.VM)
}

// Restart restarts the VM.
func (t *Target) Restart(ctx context.Context) error {
	return t.compute.Restart(ctx, t.names.VM)
}

// GetStatus maps the VM power state onto the target state.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	state, err := t.compute.PowerState(ctx, t.names.VM)
	if err != nil {
		if provision.IsNotFound(err) {
			return target.Status{State: target.StateNotInstalled}
		}
		return target.Status{State: target.StateError, Error: err.Error()}
	}

	switch state {
	case "running", "starting":
		return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
	case "deallocated", "deallocating", "stopped", "stopping":
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	default:
		return target.Status{State: target.StateError, GatewayPort: t.gatewayPort, Error: "unknown power state: " + state}
	}
}

// GetLogs reads recent gateway unit logs from the VM.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	tail := opts.TailLines
	if tail <= 0 {
		tail = 100
	}
	output, err := t.compute.RunScript(ctx, t.names.VM, []string{
		fmt.Sprintf("journalctl -u openclaw -n %d --no-pager -o cat", tail),
	})
	if err != nil {
		return nil
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}

// GetEndpoint returns the public ingress address: the Application
// Gateway frontend in the gateway topology, otherwise the VM's own
// public IP. The resolved address is cached for the target's lifetime.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	if t.frontendAddr != "" {
		return t.endpointFor(t.frontendAddr), nil
	}

	if t.config.EnableAppGateway {
		addr, err := t.appGateway.FrontendAddress(ctx, t.clients.PublicIPs, t.names.PublicIP)
		if err != nil {
			return target.GatewayEndpoint{}, err
		}
		t.frontendAddr = addr
		return t.endpointFor(addr), nil
	}

	ip, err := t.clients.PublicIPs.Get(ctx, t.config.ResourceGroup, t.names.PublicIP)
	if err != nil {
		return target.GatewayEndpoint{}, classifyAzureError("get public ip", t.names.PublicIP, err)
	}
	if ip.Properties == nil || ip.Properties.IPAddress == nil {
		return target.GatewayEndpoint{}, fmt.Errorf("public ip %s has no address yet", t.names.PublicIP)
	}
	t.frontendAddr = *ip.Properties.IPAddress
	return t.endpointFor(t.frontendAddr), nil
}

func (t *Target) endpointFor(host string) target.GatewayEndpoint {
	if t.config.EnableAppGateway {
		// Traffic enters through the gateway's HTTP listener.
		return target.GatewayEndpoint{Host: host, Port: 80, Protocol: target.ProtocolWS}
	}
	return target.GatewayEndpoint{Host: host, Port: t.gatewayPort, Protocol: target.ProtocolWS}
}

// Destroy removes the per-profile resources in dependency order. The
// group-scoped shared infrastructure is left in place for the other VMs
// in the group. Each step is best-effort.
func (t *Target) Destroy(ctx context.Context) error {
	rg := t.config.ResourceGroup

	provision.BestEffortDelete(ctx, "application gateway "+t.names.AppGateway, func(ctx context.Context) error {
		return classifyAzureError("delete application gateway", t.names.AppGateway,
			t.clients.ApplicationGateways.Delete(ctx, rg, t.names.AppGateway))
	})
	provision.BestEffortDelete(ctx, "vm "+t.names.VM, func(ctx context.Context) error {
		return classifyAzureError("delete vm", t.names.VM,
			t.clients.VirtualMachines.Delete(ctx, rg, t.names.VM))
	})
	provision.BestEffortDelete(ctx, "nic "+t.names.NIC, func(ctx context.Context) error {
		return classifyAzureError("delete nic", t.names.NIC,
			t.clients.Interfaces.Delete(ctx, rg, t.names.NIC))
	})
	provision.BestEffortDelete(ctx, "disk "+t.names.DataDisk, func(ctx context.Context) error {
		return classifyAzureError("delete disk", t.names.DataDisk,
			t.clients.Disks.Delete(ctx, rg, t.names.DataDisk))
	})
	provision.BestEffortDelete(ctx, "public ip "+t.names.PublicIP, func(ctx context.Context) error {
		return classifyAzureError("delete public ip", t.names.PublicIP,
			t.clients.PublicIPs.Delete(ctx, rg, t.names.PublicIP))
	})
	provision.BestEffortDelete(ctx, "nsg "+t.names.NSG, func(ctx context.Context) error {
		return classifyAzureError("delete nsg", t.names.NSG,
			t.clients.SecurityGroups.Delete(ctx, rg, t.names.NSG))
	})
	provision.BestEffortDelete(ctx, "vnet "+t.names.VNet, func(ctx context.Context) error {
		return classifyAzureError("delete vnet", t.names.VNet,
			t.clients.VirtualNetworks.Delete(ctx, rg, t.names.VNet))
	})

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("resource-group", rg).
		Msg("azure vm gateway destroyed; shared infrastructure retained")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
