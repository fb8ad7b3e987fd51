package cloudrun

import (
	"context"
	"fmt"
	"time"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	runpb "cloud.google.com/go/run/apiv2/runpb"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog/log"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
)

// Target manages the gateway as a Cloud Run service behind an external
// application load balancer. The service never accepts internet traffic
// directly; the load balancer's static IP is the only public entry.
type Target struct {
	config  *Config
	clients *Clients
	names   Names
	waiter  *provision.Waiter

	gatewayPort int
}

// NewTarget creates a Cloud Run deployment target.
func NewTarget(config *Config, clients *Clients) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloud run config: %w", err)
	}
	if clients == nil {
		return nil, fmt.Errorf("gcp clients are required")
	}

	return &Target{
		config:      config,
		clients:     clients,
		names:       DeriveNames(config.ProfileName),
		waiter:      provision.NewWaiter(),
		gatewayPort: DefaultGatewayPort,
	}, nil
}

func (t *Target) serviceName() string {
	return serviceFullName(t.config.ProjectID, t.config.Region, t.names.Service)
}

// Install provisions the resource chain in strict dependency order:
// secret, VPC network, static external IP, the internal-ingress service,
// the serverless NEG wrapping it, the optional Cloud Armor policy, then
// backend service, URL map, proxy and forwarding rule. The VPC connector
// is a documented manual prerequisite; install fails early without it.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("project", t.config.ProjectID).
		Str("region", t.config.Region).
		Msg("provisioning cloud run gateway")

	if err := t.ensureSecret(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure secret: %v", err)}
	}
	if err := t.ensureNetwork(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure network: %v", err)}
	}

	if t.config.VPCConnector == "" {
		return target.InstallResult{
			Success: false,
			Message: fmt.Sprintf("vpc connector is not configured: create one manually with "+
				"`gcloud compute networks vpc-access connectors create <name> --network %s --region %s --range 10.8.0.0/28` "+
				"and set it in the target configuration", t.names.Network, t.config.Region),
		}
	}

	if err := t.ensureExternalIP(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure external ip: %v", err)}
	}

	service, err := t.ensureService(ctx, port, opts.ContainerEnv)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure service: %v", err)}
	}
	if err := waitServiceReady(ctx, t.waiter, t.clients.Services, t.serviceName()); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("service did not become ready: %v", err)}
	}

	if err := t.ensureNEG(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure serverless neg: %v", err)}
	}

	armorEnabled := len(t.config.AllowedCIDRs) > 0
	if armorEnabled {
		if err := t.ensureSecurityPolicy(ctx); err != nil {
			return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure security policy: %v", err)}
		}
	}

	if err := t.ensureBackendService(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure backend service: %v", err)}
	}
	if armorEnabled {
		// Attaching the policy is part of the security contract, not advisory.
		policyURL := securityPolicyURL(t.config.ProjectID, t.names.SecurityPolicy)
		if err := t.clients.BackendServices.SetSecurityPolicy(ctx, t.names.BackendService, policyURL); err != nil {
			return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to attach security policy: %v", err)}
		}
	}

	if err := t.ensureURLMap(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure url map: %v", err)}
	}

	proxyURL, err := t.ensureProxy(ctx)
	if err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure proxy: %v", err)}
	}

	if err := t.ensureForwardingRule(ctx, proxyURL); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure forwarding rule: %v", err)}
	}

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("cloud run gateway provisioned in %s/%s", t.config.ProjectID, t.config.Region),
		InstanceID:  service.GetName(),
		ServiceName: t.names.Service,
	}
}

func (t *Target) ensureSecret(ctx context.Context) error {
	name := secretFullName(t.config.ProjectID, t.names.Secret)
	_, err := provision.Ensure(ctx, "secret "+t.names.Secret,
		func(ctx context.Context) (*secretmanagerpb.Secret, error) {
			secret, err := t.clients.Secrets.GetSecret(ctx, name)
			return secret, classifyGCPError("get secret", t.names.Secret, err)
		},
		func(ctx context.Context) (*secretmanagerpb.Secret, error) {
			secret, err := t.clients.Secrets.CreateSecret(ctx, t.names.Secret)
			return secret, classifyGCPError("create secret", t.names.Secret, err)
		},
	)
	return err
}

func (t *Target) ensureNetwork(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "network "+t.names.Network,
		func(ctx context.Context) (*computepb.Network, error) {
			network, err := t.clients.Networks.Get(ctx, t.names.Network)
			return network, classifyGCPError("get network", t.names.Network, err)
		},
		func(ctx context.Context) (*computepb.Network, error) {
			network := &computepb.Network{
				Name:                  ptr(t.names.Network),
				AutoCreateSubnetworks: ptr(true),
			}
			err := t.clients.Networks.Insert(ctx, network)
			return network, classifyGCPError("create network", t.names.Network, err)
		},
	)
	return err
}

func (t *Target) ensureExternalIP(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "external ip "+t.names.Address,
		func(ctx context.Context) (*computepb.Address, error) {
			address, err := t.clients.Addresses.Get(ctx, t.names.Address)
			return address, classifyGCPError("get address", t.names.Address, err)
		},
		func(ctx context.Context) (*computepb.Address, error) {
			address := &computepb.Address{
				Name:        ptr(t.names.Address),
				IpVersion:   ptr("IPV4"),
				AddressType: ptr("EXTERNAL"),
			}
			err := t.clients.Addresses.Insert(ctx, address)
			return address, classifyGCPError("create address", t.names.Address, err)
		},
	)
	return err
}

func (t *Target) ensureService(ctx context.Context, port int, env map[string]string) (*runpb.Service, error) {
	name := t.serviceName()
	return provision.Ensure(ctx, "service "+t.names.Service,
		func(ctx context.Context) (*runpb.Service, error) {
			service, err := t.clients.Services.GetService(ctx, name)
			return service, classifyGCPError("get service", t.names.Service, err)
		},
		func(ctx context.Context) (*runpb.Service, error) {
			service, err := t.clients.Services.CreateService(ctx, t.names.Service, buildService(t.config.ProfileName, serviceSpec{
				Image:        t.config.Image,
				Port:         port,
				Connector:    connectorFullName(t.config.ProjectID, t.config.Region, t.config.VPCConnector),
				SecretID:     t.names.Secret,
				Env:          env,
				MinInstances: 1,
				MaxInstances: t.config.MaxInstances,
			}))
			return service, classifyGCPError("create service", t.names.Service, err)
		},
	)
}

func (t *Target) ensureNEG(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "serverless neg "+t.names.NEG,
		func(ctx context.Context) (*computepb.NetworkEndpointGroup, error) {
			neg, err := t.clients.NEGs.Get(ctx, t.names.NEG)
			return neg, classifyGCPError("get neg", t.names.NEG, err)
		},
		func(ctx context.Context) (*computepb.NetworkEndpointGroup, error) {
			neg := buildNEG(t.names.NEG, t.names.Service)
			err := t.clients.NEGs.Insert(ctx, neg)
			return neg, classifyGCPError("create neg", t.names.NEG, err)
		},
	)
	return err
}

func (t *Target) ensureSecurityPolicy(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "security policy "+t.names.SecurityPolicy,
		func(ctx context.Context) (*computepb.SecurityPolicy, error) {
			policy, err := t.clients.SecurityPolicies.Get(ctx, t.names.SecurityPolicy)
			return policy, classifyGCPError("get security policy", t.names.SecurityPolicy, err)
		},
		func(ctx context.Context) (*computepb.SecurityPolicy, error) {
			policy := buildSecurityPolicy(t.names.SecurityPolicy, t.config.AllowedCIDRs)
			err := t.clients.SecurityPolicies.Insert(ctx, policy)
			return policy, classifyGCPError("create security policy", t.names.SecurityPolicy, err)
		},
	)
	return err
}

func (t *Target) ensureBackendService(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "backend service "+t.names.BackendService,
		func(ctx context.Context) (*computepb.BackendService, error) {
			backend, err := t.clients.BackendServices.Get(ctx, t.names.BackendService)
			return backend, classifyGCPError("get backend service", t.names.BackendService, err)
		},
		func(ctx context.Context) (*computepb.BackendService, error) {
			backend := buildBackendService(t.names.BackendService, negURL(t.config.ProjectID, t.config.Region, t.names.NEG))
			err := t.clients.BackendServices.Insert(ctx, backend)
			return backend, classifyGCPError("create backend service", t.names.BackendService, err)
		},
	)
	return err
}

func (t *Target) ensureURLMap(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "url map "+t.names.URLMap,
		func(ctx context.Context) (*computepb.UrlMap, error) {
			urlMap, err := t.clients.URLMaps.Get(ctx, t.names.URLMap)
			return urlMap, classifyGCPError("get url map", t.names.URLMap, err)
		},
		func(ctx context.Context) (*computepb.UrlMap, error) {
			urlMap := buildURLMap(t.names.URLMap, backendServiceURL(t.config.ProjectID, t.names.BackendService))
			err := t.clients.URLMaps.Insert(ctx, urlMap)
			return urlMap, classifyGCPError("create url map", t.names.URLMap, err)
		},
	)
	return err
}

// ensureProxy provisions the HTTPS proxy when a certificate is configured,
// the plain HTTP proxy otherwise, and returns the proxy's self link for
// the forwarding rule.
func (t *Target) ensureProxy(ctx context.Context) (string, error) {
	urlMap := urlMapURL(t.config.ProjectID, t.names.URLMap)

	if t.config.SSLCertificateID != "" {
		_, err := provision.Ensure(ctx, "https proxy "+t.names.HTTPSProxy,
			func(ctx context.Context) (*computepb.TargetHttpsProxy, error) {
				proxy, err := t.clients.HTTPSProxies.Get(ctx, t.names.HTTPSProxy)
				return proxy, classifyGCPError("get https proxy", t.names.HTTPSProxy, err)
			},
			func(ctx context.Context) (*computepb.TargetHttpsProxy, error) {
				proxy := buildHTTPSProxy(t.names.HTTPSProxy, urlMap, t.config.SSLCertificateID)
				err := t.clients.HTTPSProxies.Insert(ctx, proxy)
				return proxy, classifyGCPError("create https proxy", t.names.HTTPSProxy, err)
			},
		)
		if err != nil {
			return "", err
		}
		return httpsProxyURL(t.config.ProjectID, t.names.HTTPSProxy), nil
	}

	_, err := provision.Ensure(ctx, "http proxy "+t.names.HTTPProxy,
		func(ctx context.Context) (*computepb.TargetHttpProxy, error) {
			proxy, err := t.clients.HTTPProxies.Get(ctx, t.names.HTTPProxy)
			return proxy, classifyGCPError("get http proxy", t.names.HTTPProxy, err)
		},
		func(ctx context.Context) (*computepb.TargetHttpProxy, error) {
			proxy := buildHTTPProxy(t.names.HTTPProxy, urlMap)
			err := t.clients.HTTPProxies.Insert(ctx, proxy)
			return proxy, classifyGCPError("create http proxy", t.names.HTTPProxy, err)
		},
	)
	if err != nil {
		return "", err
	}
	return httpProxyURL(t.config.ProjectID, t.names.HTTPProxy), nil
}

func (t *Target) ensureForwardingRule(ctx context.Context, proxySelfLink string) error {
	address, err := t.externalIP(ctx)
	if err != nil {
		return err
	}
	_, err = provision.Ensure(ctx, "forwarding rule "+t.names.ForwardingRule,
		func(ctx context.Context) (*computepb.ForwardingRule, error) {
			rule, err := t.clients.ForwardingRules.Get(ctx, t.names.ForwardingRule)
			return rule, classifyGCPError("get forwarding rule", t.names.ForwardingRule, err)
		},
		func(ctx context.Context) (*computepb.ForwardingRule, error) {
			rule := buildForwardingRule(t.names.ForwardingRule, address, proxySelfLink, t.config.SSLCertificateID != "")
			err := t.clients.ForwardingRules.Insert(ctx, rule)
			return rule, classifyGCPError("create forwarding rule", t.names.ForwardingRule, err)
		},
	)
	return err
}

// Configure renders the transformed configuration into a new secret
// version. Revisions resolve the "latest" alias at startup, so the change
// only takes effect after a restart.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}
	if payload.GatewayPort > 0 {
		t.gatewayPort = payload.GatewayPort
	}

	name := secretFullName(t.config.ProjectID, t.names.Secret)
	if err := t.clients.Secrets.AddSecretVersion(ctx, name, rendered); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to add secret version: %v", err)}
	}

	return target.ConfigureResult{
		Success:         true,
		Message:         "configuration stored as new secret version",
		RequiresRestart: true,
	}
}

// Start warms the service: one instance always up, scaling to the cap.
func (t *Target) Start(ctx context.Context) error {
	return t.updateScaling(ctx, 1, t.config.MaxInstances)
}

// Stop scales the service to zero in both directions, fully stopping it
// without releasing any resources.
func (t *Target) Stop(ctx context.Context) error {
	return t.updateScaling(ctx, 0, 0)
}

func (t *Target) updateScaling(ctx context.Context, minInstances, maxInstances int) error {
	name := t.serviceName()
	service, err := t.clients.Services.GetService(ctx, name)
	if err != nil {
		return classifyGCPError("get service", t.names.Service, err)
	}
	setScaling(service, minInstances, maxInstances)
	if _, err := t.clients.Services.UpdateService(ctx, service); err != nil {
		return classifyGCPError("update service", t.names.Service, err)
	}
	return waitServiceReady(ctx, t.waiter, t.clients.Services, name)
}

// Restart stamps a timestamp annotation on the revision template, forcing
// a new revision without changing image or scaling.
func (t *Target) Restart(ctx context.Context) error {
	name := t.serviceName()
	service, err := t.clients.Services.GetService(ctx, name)
	if err != nil {
		return classifyGCPError("get service", t.names.Service, err)
	}
	stampRestart(service, time.Now())
	if _, err := t.clients.Services.UpdateService(ctx, service); err != nil {
		return classifyGCPError("update service", t.names.Service, err)
	}
	return waitServiceReady(ctx, t.waiter, t.clients.Services, name)
}

// GetStatus maps the service's scaling and terminal condition onto the
// target state.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	service, err := t.clients.Services.GetService(ctx, t.serviceName())
	if err != nil {
		err = classifyGCPError("get service", t.names.Service, err)
		if provision.IsNotFound(err) {
			return target.Status{State: target.StateNotInstalled}
		}
		return target.Status{State: target.StateError, Error: err.Error()}
	}

	if scaling := service.GetTemplate().GetScaling(); scaling != nil && scaling.GetMaxInstanceCount() == 0 {
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	}
	if condition := service.GetTerminalCondition(); condition != nil && condition.GetState() == runpb.Condition_CONDITION_FAILED {
		return target.Status{State: target.StateError, GatewayPort: t.gatewayPort, Error: condition.GetMessage()}
	}
	return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
}

// GetLogs returns nil: Cloud Run request and container logs live in Cloud
// Logging, which operators query directly.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	log.Debug().Str("service", t.names.Service).Msg("cloud run logs are served by cloud logging")
	return nil
}

// GetEndpoint returns the load balancer's static external IP. The Cloud
// Run default URL is never returned: the service is internal-only and
// handing out its URL would bypass the load balancer path.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	address, err := t.externalIP(ctx)
	if err != nil {
		return target.GatewayEndpoint{}, err
	}
	if t.config.SSLCertificateID != "" {
		return target.GatewayEndpoint{Host: address, Port: 443, Protocol: target.ProtocolWSS}, nil
	}
	return target.GatewayEndpoint{Host: address, Port: 80, Protocol: target.ProtocolWS}, nil
}

func (t *Target) externalIP(ctx context.Context) (string, error) {
	address, err := t.clients.Addresses.Get(ctx, t.names.Address)
	if err != nil {
		return "", classifyGCPError("get address", t.names.Address, err)
	}
	if address.GetAddress() == "" {
		return "", fmt.Errorf("External IP address not found for %s", t.names.Address)
	}
	return address.GetAddress(), nil
}

// Destroy tears the chain down in the exact reverse of the install order.
// Every step is best-effort so a partially torn down chain can always be
// destroyed again.
func (t *Target) Destroy(ctx context.Context) error {
	provision.BestEffortDelete(ctx, "forwarding rule "+t.names.ForwardingRule, func(ctx context.Context) error {
		return classifyGCPError("delete forwarding rule", t.names.ForwardingRule,
			t.clients.ForwardingRules.Delete(ctx, t.names.ForwardingRule))
	})
	provision.BestEffortDelete(ctx, "https proxy "+t.names.HTTPSProxy, func(ctx context.Context) error {
		return classifyGCPError("delete https proxy", t.names.HTTPSProxy,
			t.clients.HTTPSProxies.Delete(ctx, t.names.HTTPSProxy))
	})
	provision.BestEffortDelete(ctx, "http proxy "+t.names.HTTPProxy, func(ctx context.Context) error {
		return classifyGCPError("delete http proxy", t.names.HTTPProxy,
			t.clients.HTTPProxies.Delete(ctx, t.names.HTTPProxy))
	})
	provision.BestEffortDelete(ctx, "url map "+t.names.URLMap, func(ctx context.Context) error {
		return classifyGCPError("delete url map", t.names.URLMap,
			t.clients.URLMaps.Delete(ctx, t.names.URLMap))
	})
	provision.BestEffortDelete(ctx, "backend service "+t.names.BackendService, func(ctx context.Context) error {
		return classifyGCPError("delete backend service", t.names.BackendService,
			t.clients.BackendServices.Delete(ctx, t.names.BackendService))
	})
	provision.BestEffortDelete(ctx, "security policy "+t.names.SecurityPolicy, func(ctx context.Context) error {
		return classifyGCPError("delete security policy", t.names.SecurityPolicy,
			t.clients.SecurityPolicies.Delete(ctx, t.names.SecurityPolicy))
	})
	provision.BestEffortDelete(ctx, "serverless neg "+t.names.NEG, func(ctx context.Context) error {
		return classifyGCPError("delete neg", t.names.NEG,
			t.clients.NEGs.Delete(ctx, t.names.NEG))
	})
	provision.BestEffortDelete(ctx, "service "+t.names.Service, func(ctx context.Context) error {
		return classifyGCPError("delete service", t.names.Service,
			t.clients.Services.DeleteService(ctx, t.serviceName()))
	})
	provision.BestEffortDelete(ctx, "external ip "+t.names.Address, func(ctx context.Context) error {
		return classifyGCPError("delete address", t.names.Address,
			t.clients.Addresses.Delete(ctx, t.names.Address))
	})
	provision.BestEffortDelete(ctx, "secret "+t.names.Secret, func(ctx context.Context) error {
		return classifyGCPError("delete secret", t.names.Secret,
			t.clients.Secrets.DeleteSecret(ctx, secretFullName(t.config.ProjectID, t.names.Secret)))
	})

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("project", t.config.ProjectID).
		Msg("cloud run gateway destroyed; vpc network and connector retained")
	return nil
}
