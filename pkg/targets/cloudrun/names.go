// Package cloudrun implements the deployment target that runs the gateway
// as a Cloud Run service reachable only through an external application
// load balancer. The service itself never accepts traffic from the
// internet; its ingress is locked to the internal load balancer path.
package cloudrun

import (
	"fmt"

	"github.com/clawster/clawster/pkg/provision"
)

// Names is the deterministic resource name set for one gateway instance.
type Names struct {
	Secret         string
	Network        string
	Address        string
	Service        string
	NEG            string
	SecurityPolicy string
	BackendService string
	URLMap         string
	HTTPProxy      string
	HTTPSProxy     string
	ForwardingRule string
}

// DeriveNames computes the resource name set for a profile.
func DeriveNames(profileName string) Names {
	profile := provision.SanitizeName(profileName)
	return Names{
		Secret:         "clawster-config-" + profile,
		Network:        "clawster-net-" + profile,
		Address:        "clawster-ip-" + profile,
		Service:        provision.SanitizeName("openclaw-" + profileName),
		NEG:            "clawster-neg-" + profile,
		SecurityPolicy: "clawster-armor-" + profile,
		BackendService: "clawster-backend-" + profile,
		URLMap:         "clawster-urlmap-" + profile,
		HTTPProxy:      "clawster-http-proxy-" + profile,
		HTTPSProxy:     "clawster-https-proxy-" + profile,
		ForwardingRule: "clawster-fwd-" + profile,
	}
}

// serviceFullName builds the fully-qualified Cloud Run service name.
func serviceFullName(projectID, region, serviceID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s", projectID, region, serviceID)
}

// secretFullName builds the fully-qualified Secret Manager secret name.
func secretFullName(projectID, secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
}

// connectorFullName builds the fully-qualified VPC access connector name.
func connectorFullName(projectID, region, connector string) string {
	return fmt.Sprintf("projects/%s/locations/%s/connectors/%s", projectID, region, connector)
}

// negURL builds the self link of a regional network endpoint group.
func negURL(projectID, region, neg string) string {
	return fmt.Sprintf("projects/%s/regions/%s/networkEndpointGroups/%s", projectID, region, neg)
}

// backendServiceURL builds the self link of a global backend service.
func backendServiceURL(projectID, backend string) string {
	return fmt.Sprintf("projects/%s/global/backendServices/%s", projectID, backend)
}

// securityPolicyURL builds the self link of a Cloud Armor policy.
func securityPolicyURL(projectID, policy string) string {
	return fmt.Sprintf("projects/%s/global/securityPolicies/%s", projectID, policy)
}

// urlMapURL builds the self link of a global URL map.
func urlMapURL(projectID, urlMap string) string {
	return fmt.Sprintf("projects/%s/global/urlMaps/%s", projectID, urlMap)
}

// httpProxyURL builds the self link of a target HTTP proxy.
func httpProxyURL(projectID, proxy string) string {
	return fmt.Sprintf("projects/%s/global/targetHttpProxies/%s", projectID, proxy)
}

// httpsProxyURL builds the self link of a target HTTPS proxy.
func httpsProxyURL(projectID, proxy string) string {
	return fmt.Sprintf("projects/%s/global/targetHttpsProxies/%s", projectID, proxy)
}
