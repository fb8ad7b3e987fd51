package cloudrun

import (
	computepb "cloud.google.com/go/compute/apiv1/computepb"
)

// denyRulePriority is the lowest-precedence slot in a Cloud Armor policy;
// the catch-all deny lives there so every allow rule wins first.
const denyRulePriority = 2147483647

func ptr[T any](v T) *T { return &v }

// buildNEG renders the serverless network endpoint group wrapping the
// Cloud Run service.
func buildNEG(name, serviceID string) *computepb.NetworkEndpointGroup {
	return &computepb.NetworkEndpointGroup{
		Name:                ptr(name),
		NetworkEndpointType: ptr("SERVERLESS"),
		CloudRun: &computepb.NetworkEndpointGroupCloudRun{
			Service: ptr(serviceID),
		},
	}
}

// buildSecurityPolicy renders a Cloud Armor policy admitting only the
// given CIDR ranges, with a terminal deny(403) for everyone else.
func buildSecurityPolicy(name string, allowedCIDRs []string) *computepb.SecurityPolicy {
	var rules []*computepb.SecurityPolicyRule
	for i, cidr := range allowedCIDRs {
		rules = append(rules, &computepb.SecurityPolicyRule{
			Priority:    ptr(int32(1000 + i)),
			Action:      ptr("allow"),
			Description: ptr("allow " + cidr),
			Match: &computepb.SecurityPolicyRuleMatcher{
				VersionedExpr: ptr("SRC_IPS_V1"),
				Config: &computepb.SecurityPolicyRuleMatcherConfig{
					SrcIpRanges: []string{cidr},
				},
			},
		})
	}
	rules = append(rules, &computepb.SecurityPolicyRule{
		Priority:    ptr(int32(denyRulePriority)),
		Action:      ptr("deny(403)"),
		Description: ptr("deny everything not explicitly allowed"),
		Match: &computepb.SecurityPolicyRuleMatcher{
			VersionedExpr: ptr("SRC_IPS_V1"),
			Config: &computepb.SecurityPolicyRuleMatcherConfig{
				SrcIpRanges: []string{"*"},
			},
		},
	})

	return &computepb.SecurityPolicy{
		Name:  ptr(name),
		Rules: rules,
	}
}

// buildBackendService renders the global backend service fronting the NEG.
func buildBackendService(name, negSelfLink string) *computepb.BackendService {
	return &computepb.BackendService{
		Name:                ptr(name),
		LoadBalancingScheme: ptr("EXTERNAL_MANAGED"),
		Protocol:            ptr("HTTP"),
		Backends: []*computepb.Backend{
			{Group: ptr(negSelfLink)},
		},
	}
}

// buildURLMap renders the URL map routing everything to the backend.
func buildURLMap(name, backendSelfLink string) *computepb.UrlMap {
	return &computepb.UrlMap{
		Name:           ptr(name),
		DefaultService: ptr(backendSelfLink),
	}
}

// buildHTTPProxy renders the plain HTTP proxy for the URL map.
func buildHTTPProxy(name, urlMapSelfLink string) *computepb.TargetHttpProxy {
	return &computepb.TargetHttpProxy{
		Name:   ptr(name),
		UrlMap: ptr(urlMapSelfLink),
	}
}

// buildHTTPSProxy renders the TLS-terminating proxy for the URL map.
func buildHTTPSProxy(name, urlMapSelfLink, certificateID string) *computepb.TargetHttpsProxy {
	return &computepb.TargetHttpsProxy{
		Name:            ptr(name),
		UrlMap:          ptr(urlMapSelfLink),
		SslCertificates: []string{certificateID},
	}
}

// buildForwardingRule renders the global forwarding rule binding the
// static external IP to the proxy.
func buildForwardingRule(name, address, proxySelfLink string, httpsEnabled bool) *computepb.ForwardingRule {
	portRange := "80"
	if httpsEnabled {
		portRange = "443"
	}
	return &computepb.ForwardingRule{
		Name:                ptr(name),
		IPAddress:           ptr(address),
		PortRange:           ptr(portRange),
		Target:              ptr(proxySelfLink),
		LoadBalancingScheme: ptr("EXTERNAL_MANAGED"),
	}
}
