package kubernetes

import (
	"testing"
)

func TestBuildDeploymentUsesSysboxByDefault(t *testing.T) {
	cfg := DefaultConfig("Support Bot")
	deployment := buildDeployment(cfg, 19000, map[string]string{"OPENCLAW_ENV": "prod"})

	spec := deployment.Spec.Template.Spec
	if spec.RuntimeClassName == nil || *spec.RuntimeClassName != "sysbox-runc" {
		t.Error("pod should run under the sysbox runtime class by default")
	}

	container := spec.Containers[0]
	if container.Ports[0].ContainerPort != 19000 {
		t.Errorf("container port = %d", container.Ports[0].ContainerPort)
	}
	if len(container.Env) != 1 || container.Env[0].Name != "OPENCLAW_ENV" {
		t.Errorf("env = %v", container.Env)
	}

	if container.ReadinessProbe.TCPSocket == nil || container.LivenessProbe.TCPSocket == nil {
		t.Fatal("probes must be TCP socket checks")
	}
	if container.ReadinessProbe.InitialDelaySeconds != 5 || container.ReadinessProbe.PeriodSeconds != 10 {
		t.Errorf("readiness timing = %d/%d", container.ReadinessProbe.InitialDelaySeconds, container.ReadinessProbe.PeriodSeconds)
	}
	if container.LivenessProbe.InitialDelaySeconds != 15 || container.LivenessProbe.PeriodSeconds != 20 {
		t.Errorf("liveness timing = %d/%d", container.LivenessProbe.InitialDelaySeconds, container.LivenessProbe.PeriodSeconds)
	}
}

func TestBuildDeploymentSysboxOptOut(t *testing.T) {
	cfg := DefaultConfig("support-bot")
	cfg.AllowWithoutSysbox = true

	deployment := buildDeployment(cfg, 19000, nil)
	if deployment.Spec.Template.Spec.RuntimeClassName != nil {
		t.Error("opt-out should drop the runtime class")
	}
}

func TestResourceNamesAreSanitized(t *testing.T) {
	if got := resourceName("My Bot 123"); got != "openclaw-my-bot-123" {
		t.Errorf("resourceName = %s", got)
	}
}

func TestServiceSelectorMatchesPodLabels(t *testing.T) {
	cfg := DefaultConfig("support-bot")
	deployment := buildDeployment(cfg, 19000, nil)
	service := buildService(cfg, 19000)

	podLabels := deployment.Spec.Template.Labels
	for key, value := range service.Spec.Selector {
		if podLabels[key] != value {
			t.Errorf("selector %s=%s does not match pod label %s", key, value, podLabels[key])
		}
	}
	if service.Spec.Selector["managedBy"] != "clawster" {
		t.Error("resources should carry the ownership label")
	}
}

func TestBuildConfigMapCarriesRenderedConfig(t *testing.T) {
	cfg := DefaultConfig("support-bot")
	cm := buildConfigMap(cfg, []byte(`{"gateway":{}}`))
	if cm.Data["openclaw.json"] != `{"gateway":{}}` {
		t.Errorf("configmap data = %q", cm.Data["openclaw.json"])
	}
}

func TestClusterDNSName(t *testing.T) {
	cfg := DefaultConfig("support-bot")
	if got := clusterDNSName(cfg); got != "openclaw-support-bot.clawster.svc.cluster.local" {
		t.Errorf("dns name = %s", got)
	}
}
