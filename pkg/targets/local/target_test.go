package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/clawster/clawster/pkg/target"
)

type fakeRunner struct {
	commands []string
	err      error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.commands = append(f.commands, name+" "+strings.Join(args, " "))
	return "", f.err
}

func newTestTarget(t *testing.T) (*Target, *fakeRunner) {
	t.Helper()
	cfg := &Config{
		ProfileName:    "support-bot",
		StateDir:       t.TempDir(),
		GatewayBinary:  "openclaw",
		InstallPackage: "openclaw",
	}
	tgt, err := NewTarget(cfg)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	runner := &fakeRunner{}
	tgt.runner = runner
	return tgt, runner
}

func TestInstallRunsPackageManager(t *testing.T) {
	tgt, runner := newTestTarget(t)

	result := tgt.Install(context.Background(), target.InstallOptions{Version: "1.2.3", Port: 19000})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}
	want := []string{"npm install -g openclaw@1.2.3"}
	if !reflect.DeepEqual(runner.commands, want) {
		t.Errorf("commands = %v, want %v", runner.commands, want)
	}
	if result.InstallPath != tgt.config.profileDir() {
		t.Errorf("install path = %s", result.InstallPath)
	}

	port, err := tgt.readPort()
	if err != nil {
		t.Fatalf("readPort: %v", err)
	}
	if port != 19000 {
		t.Errorf("persisted port = %d, want 19000", port)
	}
}

func TestInstallFailureIsAResultNotAPanic(t *testing.T) {
	tgt, runner := newTestTarget(t)
	runner.err = fmt.Errorf("npm exploded")

	result := tgt.Install(context.Background(), target.InstallOptions{})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.Message, "npm exploded") {
		t.Errorf("message should carry the cause: %s", result.Message)
	}
}

func TestConfigureWritesTransformedConfig(t *testing.T) {
	tgt, _ := newTestTarget(t)

	result := tgt.Configure(context.Background(), target.ConfigPayload{
		ProfileName: "support-bot",
		GatewayPort: 19000,
		Config: map[string]any{
			"gateway": map[string]any{"port": 12345, "host": "localhost"},
			"sandbox": map[string]any{"mode": "off"},
		},
	})
	if !result.Success {
		t.Fatalf("configure failed: %s", result.Message)
	}
	if result.RequiresRestart {
		t.Error("no process running, restart should not be required")
	}

	data, err := os.ReadFile(tgt.config.configPath())
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}
	var written map[string]any
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("config is not valid JSON: %v", err)
	}
	gateway := written["gateway"].(map[string]any)
	if _, ok := gateway["port"]; ok {
		t.Error("gateway.port should be stripped")
	}
	if gateway["bind"] != "lan" {
		t.Errorf("gateway.bind = %v, want lan", gateway["bind"])
	}
	if _, ok := written["sandbox"]; ok {
		t.Error("root sandbox should move under agents.defaults")
	}
}

func TestStatusBeforeInstall(t *testing.T) {
	tgt, _ := newTestTarget(t)

	status := tgt.GetStatus(context.Background())
	if status.State != target.StateNotInstalled {
		t.Errorf("state = %s, want not-installed", status.State)
	}
}

func TestStatusStoppedAfterConfigure(t *testing.T) {
	tgt, _ := newTestTarget(t)

	tgt.Configure(context.Background(), target.ConfigPayload{Config: map[string]any{}})
	status := tgt.GetStatus(context.Background())
	if status.State != target.StateStopped {
		t.Errorf("state = %s, want stopped", status.State)
	}
}

func TestGetEndpointIsLoopback(t *testing.T) {
	tgt, _ := newTestTarget(t)
	tgt.Install(context.Background(), target.InstallOptions{Port: 19000})

	ep, err := tgt.GetEndpoint(context.Background())
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if ep.URL() != "ws://127.0.0.1:19000" {
		t.Errorf("endpoint = %s", ep.URL())
	}
}

func TestGetLogsTail(t *testing.T) {
	tgt, _ := newTestTarget(t)
	if err := os.MkdirAll(tgt.config.profileDir(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tgt.config.logPath(), []byte("one\ntwo\nthree\n"), 0600); err != nil {
		t.Fatal(err)
	}

	lines := tgt.GetLogs(context.Background(), target.LogOptions{TailLines: 2})
	if !reflect.DeepEqual(lines, []string{"two", "three"}) {
		t.Errorf("lines = %v", lines)
	}
}

func TestGetLogsMissingFileReturnsNil(t *testing.T) {
	tgt, _ := newTestTarget(t)
	if lines := tgt.GetLogs(context.Background(), target.LogOptions{}); lines != nil {
		t.Errorf("expected nil, got %v", lines)
	}
}

func TestDestroyRemovesState(t *testing.T) {
	tgt, _ := newTestTarget(t)
	tgt.Install(context.Background(), target.InstallOptions{Port: 19000})

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(tgt.config.profileDir()); !os.IsNotExist(err) {
		t.Error("profile dir should be removed")
	}
}

func TestTailLines(t *testing.T) {
	if got := tailLines("", 5); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
	if got := tailLines("a\nb", 5); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}
