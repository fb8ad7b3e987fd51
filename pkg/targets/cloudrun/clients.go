package cloudrun

import (
	"context"

	computepb "cloud.google.com/go/compute/apiv1/computepb"
	runpb "cloud.google.com/go/run/apiv2/runpb"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// The interfaces below are the exact slices of the GCP clients the target
// calls. They take and return plain protobuf struct types — long-running
// operations are awaited inside the adapters — so tests can fake a
// backend without touching operation plumbing.

type runServicesAPI interface {
	GetService(ctx context.Context, name string) (*runpb.Service, error)
	CreateService(ctx context.Context, serviceID string, service *runpb.Service) (*runpb.Service, error)
	UpdateService(ctx context.Context, service *runpb.Service) (*runpb.Service, error)
	DeleteService(ctx context.Context, name string) error
}

type secretsAPI interface {
	GetSecret(ctx context.Context, name string) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, secretID string) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, name string, payload []byte) error
	DeleteSecret(ctx context.Context, name string) error
}

type networksAPI interface {
	Get(ctx context.Context, name string) (*computepb.Network, error)
	Insert(ctx context.Context, network *computepb.Network) error
}

type globalAddressesAPI interface {
	Get(ctx context.Context, name string) (*computepb.Address, error)
	Insert(ctx context.Context, address *computepb.Address) error
	Delete(ctx context.Context, name string) error
}

type regionNEGsAPI interface {
	Get(ctx context.Context, name string) (*computepb.NetworkEndpointGroup, error)
	Insert(ctx context.Context, neg *computepb.NetworkEndpointGroup) error
	Delete(ctx context.Context, name string) error
}

type securityPoliciesAPI interface {
	Get(ctx context.Context, name string) (*computepb.SecurityPolicy, error)
	Insert(ctx context.Context, policy *computepb.SecurityPolicy) error
	Delete(ctx context.Context, name string) error
}

type backendServicesAPI interface {
	Get(ctx context.Context, name string) (*computepb.BackendService, error)
	Insert(ctx context.Context, backend *computepb.BackendService) error
	SetSecurityPolicy(ctx context.Context, name, policyURL string) error
	Delete(ctx context.Context, name string) error
}

type urlMapsAPI interface {
	Get(ctx context.Context, name string) (*computepb.UrlMap, error)
	Insert(ctx context.Context, urlMap *computepb.UrlMap) error
	Delete(ctx context.Context, name string) error
}

type httpProxiesAPI interface {
	Get(ctx context.Context, name string) (*computepb.TargetHttpProxy, error)
	Insert(ctx context.Context, proxy *computepb.TargetHttpProxy) error
	Delete(ctx context.Context, name string) error
}

type httpsProxiesAPI interface {
	Get(ctx context.Context, name string) (*computepb.TargetHttpsProxy, error)
	Insert(ctx context.Context, proxy *computepb.TargetHttpsProxy) error
	Delete(ctx context.Context, name string) error
}

type forwardingRulesAPI interface {
	Get(ctx context.Context, name string) (*computepb.ForwardingRule, error)
	Insert(ctx context.Context, rule *computepb.ForwardingRule) error
	Delete(ctx context.Context, name string) error
}
