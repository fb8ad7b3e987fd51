package cloudrun

import (
	"context"
	"fmt"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	run "cloud.google.com/go/run/apiv2"
	runpb "cloud.google.com/go/run/apiv2/runpb"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Clients bundles the adapted GCP clients the target needs.
type Clients struct {
	Services         runServicesAPI
	Secrets          secretsAPI
	Networks         networksAPI
	Addresses        globalAddressesAPI
	NEGs             regionNEGsAPI
	SecurityPolicies securityPoliciesAPI
	BackendServices  backendServicesAPI
	URLMaps          urlMapsAPI
	HTTPProxies      httpProxiesAPI
	HTTPSProxies     httpsProxiesAPI
	ForwardingRules  forwardingRulesAPI
}

// NewClients constructs the full GCP client set for a project and region.
// Long-running operations are awaited inside the adapters so the target
// sees plain results.
func NewClients(ctx context.Context, projectID, region string, opts ...option.ClientOption) (*Clients, error) {
	services, err := run.NewServicesClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create run services client: %w", err)
	}
	secrets, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	networks, err := compute.NewNetworksRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create networks client: %w", err)
	}
	addresses, err := compute.NewGlobalAddressesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create global addresses client: %w", err)
	}
	negs, err := compute.NewRegionNetworkEndpointGroupsRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create region NEG client: %w", err)
	}
	policies, err := compute.NewSecurityPoliciesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create security policies client: %w", err)
	}
	backends, err := compute.NewBackendServicesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend services client: %w", err)
	}
	urlMaps, err := compute.NewUrlMapsRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create url maps client: %w", err)
	}
	httpProxies, err := compute.NewTargetHttpProxiesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http proxies client: %w", err)
	}
	httpsProxies, err := compute.NewTargetHttpsProxiesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create https proxies client: %w", err)
	}
	rules, err := compute.NewGlobalForwardingRulesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwarding rules client: %w", err)
	}

	return &Clients{
		Services:         &servicesAdapter{client: services, projectID: projectID, region: region},
		Secrets:          &secretsAdapter{client: secrets, projectID: projectID},
		Networks:         &networksAdapter{client: networks, projectID: projectID},
		Addresses:        &addressesAdapter{client: addresses, projectID: projectID},
		NEGs:             &negsAdapter{client: negs, projectID: projectID, region: region},
		SecurityPolicies: &securityPoliciesAdapter{client: policies, projectID: projectID},
		BackendServices:  &backendServicesAdapter{client: backends, projectID: projectID},
		URLMaps:          &urlMapsAdapter{client: urlMaps, projectID: projectID},
		HTTPProxies:      &httpProxiesAdapter{client: httpProxies, projectID: projectID},
		HTTPSProxies:     &httpsProxiesAdapter{client: httpsProxies, projectID: projectID},
		ForwardingRules:  &forwardingRulesAdapter{client: rules, projectID: projectID},
	}, nil
}

type servicesAdapter struct {
	client    *run.ServicesClient
	projectID string
	region    string
}

func (a *servicesAdapter) GetService(ctx context.Context, name string) (*runpb.Service, error) {
	return a.client.GetService(ctx, &runpb.GetServiceRequest{Name: name})
}

func (a *servicesAdapter) CreateService(ctx context.Context, serviceID string, service *runpb.Service) (*runpb.Service, error) {
	op, err := a.client.CreateService(ctx, &runpb.CreateServiceRequest{
		Parent:    fmt.Sprintf("projects/%s/locations/%s", a.projectID, a.region),
		ServiceId: serviceID,
		Service:   service,
	})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (a *servicesAdapter) UpdateService(ctx context.Context, service *runpb.Service) (*runpb.Service, error) {
	op, err := a.client.UpdateService(ctx, &runpb.UpdateServiceRequest{Service: service})
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (a *servicesAdapter) DeleteService(ctx context.Context, name string) error {
	op, err := a.client.DeleteService(ctx, &runpb.DeleteServiceRequest{Name: name})
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

type secretsAdapter struct {
	client    *secretmanager.Client
	projectID string
}

func (a *secretsAdapter) GetSecret(ctx context.Context, name string) (*secretmanagerpb.Secret, error) {
	return a.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: name})
}

func (a *secretsAdapter) CreateSecret(ctx context.Context, secretID string) (*secretmanagerpb.Secret, error) {
	return a.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + a.projectID,
		SecretId: secretID,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
}

func (a *secretsAdapter) AddSecretVersion(ctx context.Context, name string, payload []byte) error {
	_, err := a.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  name,
		Payload: &secretmanagerpb.SecretPayload{Data: payload},
	})
	return err
}

func (a *secretsAdapter) DeleteSecret(ctx context.Context, name string) error {
	return a.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: name})
}

type networksAdapter struct {
	client    *compute.NetworksClient
	projectID string
}

func (a *networksAdapter) Get(ctx context.Context, name string) (*computepb.Network, error) {
	return a.client.Get(ctx, &computepb.GetNetworkRequest{Project: a.projectID, Network: name})
}

func (a *networksAdapter) Insert(ctx context.Context, network *computepb.Network) error {
	op, err := a.client.Insert(ctx, &computepb.InsertNetworkRequest{
		Project:         a.projectID,
		NetworkResource: network,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type addressesAdapter struct {
	client    *compute.GlobalAddressesClient
	projectID string
}

func (a *addressesAdapter) Get(ctx context.Context, name string) (*computepb.Address, error) {
	return a.client.Get(ctx, &computepb.GetGlobalAddressRequest{Project: a.projectID, Address: name})
}

func (a *addressesAdapter) Insert(ctx context.Context, address *computepb.Address) error {
	op, err := a.client.Insert(ctx, &computepb.InsertGlobalAddressRequest{
		Project:         a.projectID,
		AddressResource: address,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *addressesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteGlobalAddressRequest{Project: a.projectID, Address: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type negsAdapter struct {
	client    *compute.RegionNetworkEndpointGroupsClient
	projectID string
	region    string
}

func (a *negsAdapter) Get(ctx context.Context, name string) (*computepb.NetworkEndpointGroup, error) {
	return a.client.Get(ctx, &computepb.GetRegionNetworkEndpointGroupRequest{
		Project:              a.projectID,
		Region:               a.region,
		NetworkEndpointGroup: name,
	})
}

func (a *negsAdapter) Insert(ctx context.Context, neg *computepb.NetworkEndpointGroup) error {
	op, err := a.client.Insert(ctx, &computepb.InsertRegionNetworkEndpointGroupRequest{
		Project:                      a.projectID,
		Region:                       a.region,
		NetworkEndpointGroupResource: neg,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *negsAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteRegionNetworkEndpointGroupRequest{
		Project:              a.projectID,
		Region:               a.region,
		NetworkEndpointGroup: name,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type securityPoliciesAdapter struct {
	client    *compute.SecurityPoliciesClient
	projectID string
}

func (a *securityPoliciesAdapter) Get(ctx context.Context, name string) (*computepb.SecurityPolicy, error) {
	return a.client.Get(ctx, &computepb.GetSecurityPolicyRequest{Project: a.projectID, SecurityPolicy: name})
}

func (a *securityPoliciesAdapter) Insert(ctx context.Context, policy *computepb.SecurityPolicy) error {
	op, err := a.client.Insert(ctx, &computepb.InsertSecurityPolicyRequest{
		Project:                a.projectID,
		SecurityPolicyResource: policy,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *securityPoliciesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteSecurityPolicyRequest{Project: a.projectID, SecurityPolicy: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type backendServicesAdapter struct {
	client    *compute.BackendServicesClient
	projectID string
}

func (a *backendServicesAdapter) Get(ctx context.Context, name string) (*computepb.BackendService, error) {
	return a.client.Get(ctx, &computepb.GetBackendServiceRequest{Project: a.projectID, BackendService: name})
}

func (a *backendServicesAdapter) Insert(ctx context.Context, backend *computepb.BackendService) error {
	op, err := a.client.Insert(ctx, &computepb.InsertBackendServiceRequest{
		Project:                a.projectID,
		BackendServiceResource: backend,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *backendServicesAdapter) SetSecurityPolicy(ctx context.Context, name, policyURL string) error {
	op, err := a.client.SetSecurityPolicy(ctx, &computepb.SetSecurityPolicyBackendServiceRequest{
		Project:        a.projectID,
		BackendService: name,
		SecurityPolicyReferenceResource: &computepb.SecurityPolicyReference{
			SecurityPolicy: &policyURL,
		},
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *backendServicesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteBackendServiceRequest{Project: a.projectID, BackendService: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type urlMapsAdapter struct {
	client    *compute.UrlMapsClient
	projectID string
}

func (a *urlMapsAdapter) Get(ctx context.Context, name string) (*computepb.UrlMap, error) {
	return a.client.Get(ctx, &computepb.GetUrlMapRequest{Project: a.projectID, UrlMap: name})
}

func (a *urlMapsAdapter) Insert(ctx context.Context, urlMap *computepb.UrlMap) error {
	op, err := a.client.Insert(ctx, &computepb.InsertUrlMapRequest{
		Project:        a.projectID,
		UrlMapResource: urlMap,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *urlMapsAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteUrlMapRequest{Project: a.projectID, UrlMap: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type httpProxiesAdapter struct {
	client    *compute.TargetHttpProxiesClient
	projectID string
}

func (a *httpProxiesAdapter) Get(ctx context.Context, name string) (*computepb.TargetHttpProxy, error) {
	return a.client.Get(ctx, &computepb.GetTargetHttpProxyRequest{Project: a.projectID, TargetHttpProxy: name})
}

func (a *httpProxiesAdapter) Insert(ctx context.Context, proxy *computepb.TargetHttpProxy) error {
	op, err := a.client.Insert(ctx, &computepb.InsertTargetHttpProxyRequest{
		Project:                 a.projectID,
		TargetHttpProxyResource: proxy,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *httpProxiesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteTargetHttpProxyRequest{Project: a.projectID, TargetHttpProxy: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type httpsProxiesAdapter struct {
	client    *compute.TargetHttpsProxiesClient
	projectID string
}

func (a *httpsProxiesAdapter) Get(ctx context.Context, name string) (*computepb.TargetHttpsProxy, error) {
	return a.client.Get(ctx, &computepb.GetTargetHttpsProxyRequest{Project: a.projectID, TargetHttpsProxy: name})
}

func (a *httpsProxiesAdapter) Insert(ctx context.Context, proxy *computepb.TargetHttpsProxy) error {
	op, err := a.client.Insert(ctx, &computepb.InsertTargetHttpsProxyRequest{
		Project:                  a.projectID,
		TargetHttpsProxyResource: proxy,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *httpsProxiesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteTargetHttpsProxyRequest{Project: a.projectID, TargetHttpsProxy: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

type forwardingRulesAdapter struct {
	client    *compute.GlobalForwardingRulesClient
	projectID string
}

func (a *forwardingRulesAdapter) Get(ctx context.Context, name string) (*computepb.ForwardingRule, error) {
	return a.client.Get(ctx, &computepb.GetGlobalForwardingRuleRequest{Project: a.projectID, ForwardingRule: name})
}

func (a *forwardingRulesAdapter) Insert(ctx context.Context, rule *computepb.ForwardingRule) error {
	op, err := a.client.Insert(ctx, &computepb.InsertGlobalForwardingRuleRequest{
		Project:                a.projectID,
		ForwardingRuleResource: rule,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (a *forwardingRulesAdapter) Delete(ctx context.Context, name string) error {
	op, err := a.client.Delete(ctx, &computepb.DeleteGlobalForwardingRuleRequest{Project: a.projectID, ForwardingRule: name})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}
