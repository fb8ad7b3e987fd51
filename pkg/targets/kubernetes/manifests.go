package kubernetes

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/clawster/clawster/pkg/provision"
)

const configFileName = "openclaw.json"

// resourceName derives the shared name for all of a profile's resources.
func resourceName(profileName string) string {
	return provision.SanitizeName("openclaw-" + profileName)
}

// labels returns the label set shared by all of a profile's resources.
// The selector matches on these, so they must stay stable.
func labels(profileName string) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":     "openclaw-gateway",
		"app.kubernetes.io/instance": provision.SanitizeName(profileName),
		provision.OwnerTagKey:        provision.OwnerTag,
	}
}

// buildConfigMap wraps the rendered gateway configuration.
func buildConfigMap(cfg *Config, renderedConfig []byte) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      resourceName(cfg.ProfileName),
			Namespace: cfg.Namespace,
			Labels:    labels(cfg.ProfileName),
		},
		Data: map[string]string{
			configFileName: string(renderedConfig),
		},
	}
}

// buildDeployment builds the gateway Deployment. The pod runs under the
// Sysbox RuntimeClass unless the config explicitly opts out.
func buildDeployment(cfg *Config, port int, env map[string]string) *appsv1.Deployment {
	name := resourceName(cfg.ProfileName)
	podLabels := labels(cfg.ProfileName)
	replicas := cfg.Replicas

	var envVars []corev1.EnvVar
	for key, value := range env {
		envVars = append(envVars, corev1.EnvVar{Name: key, Value: value})
	}

	podSpec := corev1.PodSpec{
		Containers: []corev1.Container{
			{
				Name:  "gateway",
				Image: cfg.Image,
				Ports: []corev1.ContainerPort{
					{Name: "gateway", ContainerPort: int32(port), Protocol: corev1.ProtocolTCP},
				},
				Env: envVars,
				ReadinessProbe: &corev1.Probe{
					ProbeHandler: corev1.ProbeHandler{
						TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(int32(port))},
					},
					InitialDelaySeconds: 5,
					PeriodSeconds:       10,
				},
				LivenessProbe: &corev1.Probe{
					ProbeHandler: corev1.ProbeHandler{
						TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(int32(port))},
					},
					InitialDelaySeconds: 15,
					PeriodSeconds:       20,
				},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "config", MountPath: "/etc/openclaw", ReadOnly: true},
				},
			},
		},
		Volumes: []corev1.Volume{
			{
				Name: "config",
				VolumeSource: corev1.VolumeSource{
					ConfigMap: &corev1.ConfigMapVolumeSource{
						LocalObjectReference: corev1.LocalObjectReference{Name: name},
					},
				},
			},
		},
	}
	if !cfg.AllowWithoutSysbox {
		runtimeClass := sysboxRuntimeClass
		podSpec.RuntimeClassName = &runtimeClass
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cfg.Namespace,
			Labels:    podLabels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: podLabels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec:       podSpec,
			},
		},
	}
}

// buildService builds the cluster-internal Service for the gateway.
func buildService(cfg *Config, port int) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      resourceName(cfg.ProfileName),
			Namespace: cfg.Namespace,
			Labels:    labels(cfg.ProfileName),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: labels(cfg.ProfileName),
			Ports: []corev1.ServicePort{
				{
					Name:       "gateway",
					Port:       int32(port),
					TargetPort: intstr.FromString("gateway"),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

// clusterDNSName is the in-cluster DNS name for the profile's Service.
func clusterDNSName(cfg *Config) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", resourceName(cfg.ProfileName), cfg.Namespace)
}
