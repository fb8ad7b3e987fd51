package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/clawster/clawster/pkg/botconfig"
	"github.com/clawster/clawster/pkg/provision"
	"github.com/clawster/clawster/pkg/target"
)

// restartedAtAnnotation forces a rollout when its value changes.
const restartedAtAnnotation = "clawster.dev/restarted-at"

// Target manages the gateway as a Deployment in a Kubernetes cluster.
// The clientset is injected so tests can use a fake.
type Target struct {
	config *Config
	client kubernetes.Interface

	gatewayPort int
}

// NewTarget creates a Kubernetes deployment target.
func NewTarget(config *Config, client kubernetes.Interface) (*Target, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kubernetes target config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("kubernetes client is required")
	}
	return &Target{config: config, client: client, gatewayPort: DefaultGatewayPort}, nil
}

// Install ensures the namespace and applies the Deployment and Service.
func (t *Target) Install(ctx context.Context, opts target.InstallOptions) target.InstallResult {
	port := opts.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	t.gatewayPort = port

	if opts.Version != "" && !strings.Contains(t.config.Image, ":") {
		t.config.Image = t.config.Image + ":" + opts.Version
	}

	if t.config.AllowWithoutSysbox {
		log.Warn().
			Str("profile", t.config.ProfileName).
			Msg("gateway pod will run WITHOUT the sysbox runtime class; development use only")
	}

	if err := t.ensureNamespace(ctx); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to ensure namespace: %v", err)}
	}

	deployment := buildDeployment(t.config, port, opts.ContainerEnv)
	if err := t.apply(ctx, "deployments", deployment.Name, deployment); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to apply deployment: %v", err)}
	}

	service := buildService(t.config, port)
	if err := t.apply(ctx, "services", service.Name, service); err != nil {
		return target.InstallResult{Success: false, Message: fmt.Sprintf("failed to apply service: %v", err)}
	}

	log.Info().
		Str("profile", t.config.ProfileName).
		Str("namespace", t.config.Namespace).
		Str("image", t.config.Image).
		Msg("gateway deployed to cluster")

	return target.InstallResult{
		Success:     true,
		Message:     fmt.Sprintf("gateway deployed to namespace %s", t.config.Namespace),
		ServiceName: resourceName(t.config.ProfileName),
	}
}

// Configure applies the transformed configuration as a ConfigMap. The
// ConfigMap is mounted, so a restart is required to pick it up.
func (t *Target) Configure(ctx context.Context, payload target.ConfigPayload) target.ConfigureResult {
	transformed := botconfig.Transform(payload.Config)
	rendered, err := botconfig.Render(transformed)
	if err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to render config: %v", err)}
	}

	configMap := buildConfigMap(t.config, rendered)
	if err := t.apply(ctx, "configmaps", configMap.Name, configMap); err != nil {
		return target.ConfigureResult{Success: false, Message: fmt.Sprintf("failed to apply configmap: %v", err)}
	}
	if payload.GatewayPort > 0 {
		t.gatewayPort = payload.GatewayPort
	}

	return target.ConfigureResult{
		Success:         true,
		Message:         "configuration applied",
		RequiresRestart: true,
	}
}

// Start scales the Deployment to the configured replica count.
func (t *Target) Start(ctx context.Context) error {
	return t.scale(ctx, t.config.Replicas)
}

// Stop scales the Deployment to zero.
func (t *Target) Stop(ctx context.Context) error {
	return t.scale(ctx, 0)
}

// Restart stamps the pod template so the Deployment rolls out a fresh
// revision without changing the replica count.
func (t *Target) Restart(ctx context.Context) error {
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{%q:%q}}}}}`,
		restartedAtAnnotation, time.Now().UTC().Format(time.RFC3339),
	)
	_, err := t.client.AppsV1().Deployments(t.config.Namespace).Patch(
		ctx, resourceName(t.config.ProfileName), types.StrategicMergePatchType,
		[]byte(patch), metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("failed to restart gateway: %w", err)
	}
	return nil
}

// GetStatus inspects the Deployment's replica counts.
func (t *Target) GetStatus(ctx context.Context) target.Status {
	deployment, err := t.client.AppsV1().Deployments(t.config.Namespace).Get(
		ctx, resourceName(t.config.ProfileName), metav1.GetOptions{},
	)
	if apierrors.IsNotFound(err) {
		return target.Status{State: target.StateNotInstalled}
	}
	if err != nil {
		return target.Status{State: target.StateError, Error: err.Error()}
	}

	desired := int32(0)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	switch {
	case desired == 0:
		return target.Status{State: target.StateStopped, GatewayPort: t.gatewayPort}
	case deployment.Status.ReadyReplicas > 0:
		return target.Status{State: target.StateRunning, GatewayPort: t.gatewayPort}
	default:
		return target.Status{
			State:       target.StateError,
			GatewayPort: t.gatewayPort,
			Error:       fmt.Sprintf("0/%d replicas ready", desired),
		}
	}
}

// GetLogs returns recent log lines from the first gateway pod.
func (t *Target) GetLogs(ctx context.Context, opts target.LogOptions) []string {
	pods, err := t.client.CoreV1().Pods(t.config.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("app.kubernetes.io/instance=%s", provision.SanitizeName(t.config.ProfileName)),
	})
	if err != nil || len(pods.Items) == 0 {
		return nil
	}

	tail := int64(opts.TailLines)
	if tail <= 0 {
		tail = 100
	}
	req := t.client.CoreV1().Pods(t.config.Namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{
		Container: "gateway",
		TailLines: &tail,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// GetEndpoint prefers the Service's cluster IP, falling back to the
// in-cluster DNS name. Both are cluster-internal addresses; external
// exposure is not this target's concern.
func (t *Target) GetEndpoint(ctx context.Context) (target.GatewayEndpoint, error) {
	endpoint := target.GatewayEndpoint{Port: t.gatewayPort, Protocol: target.ProtocolWS}

	service, err := t.client.CoreV1().Services(t.config.Namespace).Get(
		ctx, resourceName(t.config.ProfileName), metav1.GetOptions{},
	)
	if err == nil && service.Spec.ClusterIP != "" && service.Spec.ClusterIP != corev1.ClusterIPNone {
		endpoint.Host = service.Spec.ClusterIP
		return endpoint, nil
	}

	endpoint.Host = clusterDNSName(t.config)
	return endpoint, nil
}

// Destroy removes the Service, Deployment, and ConfigMap. Each deletion
// is best-effort so a partial install can still be torn down.
func (t *Target) Destroy(ctx context.Context) error {
	name := resourceName(t.config.ProfileName)
	ns := t.config.Namespace

	provision.BestEffortDelete(ctx, "service "+name, func(ctx context.Context) error {
		return asProvisionError("delete service", name,
			t.client.CoreV1().Services(ns).Delete(ctx, name, metav1.DeleteOptions{}))
	})
	provision.BestEffortDelete(ctx, "deployment "+name, func(ctx context.Context) error {
		return asProvisionError("delete deployment", name,
			t.client.AppsV1().Deployments(ns).Delete(ctx, name, metav1.DeleteOptions{}))
	})
	provision.BestEffortDelete(ctx, "configmap "+name, func(ctx context.Context) error {
		return asProvisionError("delete configmap", name,
			t.client.CoreV1().ConfigMaps(ns).Delete(ctx, name, metav1.DeleteOptions{}))
	})

	log.Info().Str("profile", t.config.ProfileName).Str("namespace", ns).Msg("gateway removed from cluster")
	return nil
}

// ensureNamespace creates the namespace when it does not exist yet.
func (t *Target) ensureNamespace(ctx context.Context) error {
	_, err := provision.Ensure(ctx, "namespace "+t.config.Namespace,
		func(ctx context.Context) (*corev1.Namespace, error) {
			ns, err := t.client.CoreV1().Namespaces().Get(ctx, t.config.Namespace, metav1.GetOptions{})
			return ns, asProvisionError("get namespace", t.config.Namespace, err)
		},
		func(ctx context.Context) (*corev1.Namespace, error) {
			ns := &corev1.Namespace{
				ObjectMeta: metav1.ObjectMeta{
					Name:   t.config.Namespace,
					Labels: map[string]string{provision.OwnerTagKey: provision.OwnerTag},
				},
			}
			created, err := t.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
			return created, asProvisionError("create namespace", t.config.Namespace, err)
		},
	)
	return err
}

// apply performs a server-side apply of the object, taking ownership of
// the fields clawster manages.
func (t *Target) apply(ctx context.Context, resource, name string, obj runtime.Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", resource, name, err)
	}

	force := true
	opts := metav1.PatchOptions{FieldManager: fieldManager, Force: &force}

	switch resource {
	case "deployments":
		_, err = t.client.AppsV1().Deployments(t.config.Namespace).Patch(ctx, name, types.ApplyPatchType, data, opts)
	case "services":
		_, err = t.client.CoreV1().Services(t.config.Namespace).Patch(ctx, name, types.ApplyPatchType, data, opts)
	case "configmaps":
		_, err = t.client.CoreV1().ConfigMaps(t.config.Namespace).Patch(ctx, name, types.ApplyPatchType, data, opts)
	default:
		return fmt.Errorf("unsupported resource type: %s", resource)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s/%s: %w", resource, name, err)
	}
	return nil
}

// scale sets the Deployment's replica count.
func (t *Target) scale(ctx context.Context, replicas int32) error {
	name := resourceName(t.config.ProfileName)
	deployments := t.client.AppsV1().Deployments(t.config.Namespace)

	deployment, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}
	deployment.Spec.Replicas = &replicas
	if _, err := deployments.Update(ctx, deployment, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to scale deployment to %d: %w", replicas, err)
	}

	log.Info().Str("deployment", name).Int32("replicas", replicas).Msg("gateway scaled")
	return nil
}

// asProvisionError maps Kubernetes API errors onto the provisioning
// error taxonomy so the ensure/delete helpers can classify them.
func asProvisionError(op, resource string, err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsNotFound(err):
		return provision.NewNotFound(resource, err)
	case apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err):
		return provision.NewConflict(resource, err)
	default:
		return provision.NewProviderError(op, resource, err)
	}
}
