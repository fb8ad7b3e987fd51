package cloudrun

import (
	"context"
	"fmt"
	"sort"
	"time"

	runpb "cloud.google.com/go/run/apiv2/runpb"

	"github.com/clawster/clawster/pkg/provision"
)

const (
	restartedAtAnnotation = "clawster.dev/restarted-at"
	configEnvVar          = "OPENCLAW_CONFIG_JSON"
)

// serviceSpec carries the inputs for buildService.
type serviceSpec struct {
	Image        string
	Port         int
	Connector    string
	SecretID     string
	Env          map[string]string
	MinInstances int
	MaxInstances int
}

// buildService renders the Cloud Run service resource. Ingress is locked
// to the internal load balancer path: the service must never be directly
// internet-addressable, public traffic enters only through the external
// load balancer chain.
func buildService(profileName string, spec serviceSpec) *runpb.Service {
	env := []*runpb.EnvVar{
		{
			Name: configEnvVar,
			Values: &runpb.EnvVar_ValueSource{
				ValueSource: &runpb.EnvVarSource{
					SecretKeyRef: &runpb.SecretKeySelector{
						Secret:  spec.SecretID,
						Version: "latest",
					},
				},
			},
		},
	}
	for _, key := range sortedKeys(spec.Env) {
		env = append(env, &runpb.EnvVar{
			Name:   key,
			Values: &runpb.EnvVar_Value{Value: spec.Env[key]},
		})
	}

	return &runpb.Service{
		Labels:  map[string]string{provision.OwnerTagKey: provision.OwnerTag},
		Ingress: runpb.IngressTraffic_INGRESS_TRAFFIC_INTERNAL_LOAD_BALANCER,
		Template: &runpb.RevisionTemplate{
			Labels: map[string]string{"profile": provision.SanitizeName(profileName)},
			Scaling: &runpb.RevisionScaling{
				MinInstanceCount: int32(spec.MinInstances),
				MaxInstanceCount: int32(spec.MaxInstances),
			},
			VpcAccess: &runpb.VpcAccess{
				Connector: spec.Connector,
				Egress:    runpb.VpcAccess_ALL_TRAFFIC,
			},
			Containers: []*runpb.Container{
				{
					Image: spec.Image,
					Ports: []*runpb.ContainerPort{
						{Name: "http1", ContainerPort: int32(spec.Port)},
					},
					Env: env,
				},
			},
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// setScaling rewrites the service's revision scaling in place.
func setScaling(service *runpb.Service, minInstances, maxInstances int) {
	if service.Template == nil {
		service.Template = &runpb.RevisionTemplate{}
	}
	service.Template.Scaling = &runpb.RevisionScaling{
		MinInstanceCount: int32(minInstances),
		MaxInstanceCount: int32(maxInstances),
	}
}

// stampRestart forces a new revision without touching scaling or image.
func stampRestart(service *runpb.Service, now time.Time) {
	if service.Template == nil {
		service.Template = &runpb.RevisionTemplate{}
	}
	if service.Template.Annotations == nil {
		service.Template.Annotations = map[string]string{}
	}
	service.Template.Annotations[restartedAtAnnotation] = now.UTC().Format(time.RFC3339)
}

// waitServiceReady polls the service until its terminal condition reports
// success. A failed condition surfaces its message immediately.
func waitServiceReady(ctx context.Context, waiter *provision.Waiter, services runServicesAPI, name string) error {
	return waiter.Wait(ctx, "service "+name, func(ctx context.Context) (bool, error) {
		service, err := services.GetService(ctx, name)
		if err != nil {
			return false, classifyGCPError("get service", name, err)
		}
		condition := service.GetTerminalCondition()
		if condition == nil {
			return false, nil
		}
		switch condition.GetState() {
		case runpb.Condition_CONDITION_SUCCEEDED:
			return true, nil
		case runpb.Condition_CONDITION_FAILED:
			return false, fmt.Errorf("service %s failed: %s", name, condition.GetMessage())
		default:
			return false, nil
		}
	})
}
