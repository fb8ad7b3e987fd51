package kubernetes

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/clawster/clawster/pkg/target"
)

func newTestTarget(t *testing.T, objects ...runtime.Object) (*Target, *fake.Clientset) {
	t.Helper()

	client := fake.NewSimpleClientset(objects...)

	cfg := DefaultConfig("support-bot")
	tgt, err := NewTarget(cfg, client)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return tgt, client
}

func existingDeployment(replicas int32, ready int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "openclaw-support-bot", Namespace: "clawster"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: ready},
	}
}

func TestStartScalesToConfiguredReplicas(t *testing.T) {
	tgt, client := newTestTarget(t, existingDeployment(0, 0))

	if err := tgt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deployment, err := client.AppsV1().Deployments("clawster").Get(context.Background(), "openclaw-support-bot", metav1.GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if *deployment.Spec.Replicas != 1 {
		t.Errorf("replicas = %d, want 1", *deployment.Spec.Replicas)
	}
}

func TestStopScalesToZero(t *testing.T) {
	tgt, client := newTestTarget(t, existingDeployment(1, 1))

	if err := tgt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	deployment, _ := client.AppsV1().Deployments("clawster").Get(context.Background(), "openclaw-support-bot", metav1.GetOptions{})
	if *deployment.Spec.Replicas != 0 {
		t.Errorf("replicas = %d, want 0", *deployment.Spec.Replicas)
	}
}

func TestStartMissingDeploymentErrors(t *testing.T) {
	tgt, _ := newTestTarget(t)

	if err := tgt.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing deployment")
	}
}

func TestRestartStampsAnnotation(t *testing.T) {
	tgt, client := newTestTarget(t, existingDeployment(1, 1))

	if err := tgt.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	deployment, _ := client.AppsV1().Deployments("clawster").Get(context.Background(), "openclaw-support-bot", metav1.GetOptions{})
	if deployment.Spec.Template.Annotations[restartedAtAnnotation] == "" {
		t.Error("restart annotation not stamped")
	}
}

func TestGetStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		deployment *appsv1.Deployment
		want       target.State
	}{
		{"not installed", nil, target.StateNotInstalled},
		{"stopped", existingDeployment(0, 0), target.StateStopped},
		{"running", existingDeployment(1, 1), target.StateRunning},
		{"not ready", existingDeployment(2, 0), target.StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tgt *Target
			if tt.deployment != nil {
				tgt, _ = newTestTarget(t, tt.deployment)
			} else {
				tgt, _ = newTestTarget(t)
			}
			status := tgt.GetStatus(context.Background())
			if status.State != tt.want {
				t.Errorf("state = %s, want %s", status.State, tt.want)
			}
		})
	}
}

func TestGetEndpointPrefersClusterIP(t *testing.T) {
	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "openclaw-support-bot", Namespace: "clawster"},
		Spec:       corev1.ServiceSpec{ClusterIP: "10.96.0.42"},
	}
	tgt, _ := newTestTarget(t, service)

	ep, err := tgt.GetEndpoint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ep.Host != "10.96.0.42" {
		t.Errorf("host = %s", ep.Host)
	}
}

func TestGetEndpointFallsBackToDNS(t *testing.T) {
	tgt, _ := newTestTarget(t)

	ep, err := tgt.GetEndpoint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ep.Host != "openclaw-support-bot.clawster.svc.cluster.local" {
		t.Errorf("host = %s", ep.Host)
	}
}

func TestDestroyToleratesMissingResources(t *testing.T) {
	tgt, _ := newTestTarget(t, existingDeployment(1, 1))

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy should not fail on missing service/configmap: %v", err)
	}
}

func TestDestroyRemovesDeployment(t *testing.T) {
	tgt, client := newTestTarget(t, existingDeployment(1, 1))

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := client.AppsV1().Deployments("clawster").Get(context.Background(), "openclaw-support-bot", metav1.GetOptions{})
	if err == nil {
		t.Error("deployment should be deleted")
	}
}
