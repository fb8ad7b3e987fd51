package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/targets/cloudflare/statesync"
)

type wranglerCall struct {
	dir   string
	stdin string
	args  []string
}

type fakeWrangler struct {
	calls  []wranglerCall
	failOn map[string]error
}

func newFakeWrangler() *fakeWrangler {
	return &fakeWrangler{failOn: map[string]error{}}
}

func (f *fakeWrangler) Run(_ context.Context, dir, stdin string, args ...string) (string, error) {
	f.calls = append(f.calls, wranglerCall{dir: dir, stdin: stdin, args: args})
	if err := f.failOn[args[0]]; err != nil {
		return "", err
	}
	return "ok", nil
}

func (f *fakeWrangler) commands() []string {
	var out []string
	for _, call := range f.calls {
		out = append(out, strings.Join(call.args, " "))
	}
	return out
}

func testTarget(t *testing.T) (*Target, *fakeWrangler) {
	t.Helper()
	config := &Config{
		ProfileName:      "support-bot",
		AccountID:        "acct-1",
		ProjectDir:       t.TempDir(),
		WorkersSubdomain: "acme",
	}
	runner := newFakeWrangler()
	tgt, err := NewTargetWithRunner(config, runner, nil)
	if err != nil {
		t.Fatalf("NewTargetWithRunner: %v", err)
	}
	return tgt, runner
}

func TestInstallScaffoldsAndDeploys(t *testing.T) {
	tgt, runner := testTarget(t)

	result := tgt.Install(context.Background(), target.InstallOptions{
		ProfileName: "support-bot",
		Port:        19000,
		Version:     "1.2.3",
	})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}
	if result.InstanceID != "openclaw-support-bot" {
		t.Errorf("instance id = %q", result.InstanceID)
	}

	manifest, err := os.ReadFile(filepath.Join(tgt.config.ProjectDir, "wrangler.toml"))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if !strings.Contains(string(manifest), `name = "openclaw-support-bot"`) {
		t.Errorf("manifest:\n%s", manifest)
	}

	dockerfile, err := os.ReadFile(filepath.Join(tgt.config.ProjectDir, "Dockerfile"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dockerfile), "openclaw@1.2.3") {
		t.Errorf("Dockerfile does not pin the version:\n%s", dockerfile)
	}

	if len(runner.calls) != 1 || runner.calls[0].args[0] != "deploy" {
		t.Errorf("wrangler calls = %q", runner.commands())
	}
	if runner.calls[0].dir != tgt.config.ProjectDir {
		t.Errorf("deploy ran in %q", runner.calls[0].dir)
	}
}

func TestInstallReportsDeployFailure(t *testing.T) {
	tgt, runner := testTarget(t)
	runner.failOn["deploy"] = fmt.Errorf("authentication error")

	result := tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot"})
	if result.Success {
		t.Fatal("install succeeded despite deploy failure")
	}
	if !strings.Contains(result.Message, "authentication error") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestConfigurePushesSecretsViaStdinOnly(t *testing.T) {
	tgt, runner := testTarget(t)
	tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot", Port: 19000})
	runner.calls = nil

	result := tgt.Configure(context.Background(), target.ConfigPayload{
		ProfileName: "support-bot",
		GatewayPort: 19000,
		Environment: map[string]string{
			"DISCORD_TOKEN": "tok-123",
			"API_KEY":       "key-456",
			"LOG_LEVEL":     "debug",
		},
		Config: map[string]any{
			"gateway": map[string]any{"port": 19000, "bind": "lan"},
		},
	})
	if !result.Success {
		t.Fatalf("configure failed: %s", result.Message)
	}
	if !result.RequiresRestart {
		t.Error("configure must require a restart")
	}

	// Secrets arrive sorted, one wrangler invocation each, value on stdin,
	// and the rendered config rides along as its own secret.
	wantSecrets := []struct {
		name  string
		stdin string
	}{
		{"API_KEY", "key-456"},
		{"DISCORD_TOKEN", "tok-123"},
	}
	var secretCalls []wranglerCall
	for _, call := range runner.calls {
		if call.args[0] == "secret" {
			secretCalls = append(secretCalls, call)
		}
	}
	if len(secretCalls) != len(wantSecrets)+1 {
		t.Fatalf("secret calls = %q", runner.commands())
	}
	for i, want := range wantSecrets {
		call := secretCalls[i]
		if call.args[2] != want.name || call.stdin != want.stdin {
			t.Errorf("secret call %d = %v stdin %q", i, call.args, call.stdin)
		}
		if call.args[4] != "openclaw-support-bot" {
			t.Errorf("secret call %d targets worker %q", i, call.args[4])
		}
	}
	configCall := secretCalls[len(secretCalls)-1]
	if configCall.args[2] != "OPENCLAW_CONFIG_JSON" {
		t.Errorf("config secret call = %v", configCall.args)
	}
	if !strings.Contains(configCall.stdin, `"bind": "lan"`) {
		t.Errorf("rendered config = %q", configCall.stdin)
	}

	manifest, err := os.ReadFile(filepath.Join(tgt.config.ProjectDir, "wrangler.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(manifest), `LOG_LEVEL = "debug"`) {
		t.Errorf("plain var missing from manifest:\n%s", manifest)
	}
	for _, leaked := range []string{"tok-123", "key-456", "DISCORD_TOKEN", "API_KEY"} {
		if strings.Contains(string(manifest), leaked) {
			t.Errorf("secret material %q leaked into the manifest", leaked)
		}
	}
}

func TestLifecycleCommands(t *testing.T) {
	tgt, runner := testTarget(t)

	if err := tgt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tgt.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := tgt.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}

	want := []string{
		"deploy",
		"delete --name openclaw-support-bot",
		"deploy",
	}
	got := runner.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStatusMapping(t *testing.T) {
	tgt, runner := testTarget(t)

	if state := tgt.GetStatus(context.Background()).State; state != target.StateNotInstalled {
		t.Errorf("state before install = %q", state)
	}

	tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot", Port: 19000})

	status := tgt.GetStatus(context.Background())
	if status.State != target.StateRunning {
		t.Errorf("state with live deployment = %q", status.State)
	}
	if status.GatewayPort != 19000 {
		t.Errorf("gateway port = %d", status.GatewayPort)
	}

	runner.failOn["deployments"] = fmt.Errorf("worker not found")
	if state := tgt.GetStatus(context.Background()).State; state != target.StateStopped {
		t.Errorf("state without deployment = %q", state)
	}
}

func TestGetLogsIsNil(t *testing.T) {
	tgt, _ := testTarget(t)
	if logs := tgt.GetLogs(context.Background(), target.LogOptions{}); logs != nil {
		t.Errorf("logs = %q", logs)
	}
}

func TestEndpointUsesWorkersDevSubdomain(t *testing.T) {
	tgt, _ := testTarget(t)
	endpoint, err := tgt.GetEndpoint(context.Background())
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if endpoint.URL() != "wss://openclaw-support-bot.acme.workers.dev:443" {
		t.Errorf("endpoint = %q", endpoint.URL())
	}
}

func TestEndpointWithoutSubdomainFails(t *testing.T) {
	tgt, _ := testTarget(t)
	tgt.config.WorkersSubdomain = ""
	if _, err := tgt.GetEndpoint(context.Background()); err == nil {
		t.Fatal("endpoint resolved without a subdomain")
	}
}

func TestDestroyDeletesWorkerAndProject(t *testing.T) {
	tgt, runner := testTarget(t)
	tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot"})
	runner.calls = nil

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0].args[0] != "delete" {
		t.Errorf("destroy commands = %q", runner.commands())
	}
	if _, err := os.Stat(tgt.config.ProjectDir); !os.IsNotExist(err) {
		t.Errorf("project directory survived destroy: %v", err)
	}
}

// memStore is an in-memory object store for state-sync tests.
type memStore struct {
	objects map[string][]byte
	failGet map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failGet: map[string]error{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := s.failGet[key]; err != nil {
		return nil, err
	}
	body, ok := s.objects[key]
	if !ok {
		return nil, statesync.ErrNotExist
	}
	return body, nil
}

func (s *memStore) Put(_ context.Context, key string, body []byte) error {
	s.objects[key] = body
	return nil
}

// seedRemoteState backs up a valid state directory carrying marker into
// the store under the test worker's keys.
func seedRemoteState(t *testing.T, store *memStore, marker string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "openclaw.db"), []byte("sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, marker), []byte("remote"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := statesync.NewSyncer(store, "openclaw-support-bot", dir).BackupToR2(context.Background()); err != nil {
		t.Fatalf("seed backup: %v", err)
	}
}

// writeLocalState populates the target's state directory with the critical
// files and a backup marker carrying the given timestamp.
func writeLocalState(t *testing.T, dir string, timestampMs int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "openclaw.db"), []byte("sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	meta, _ := json.Marshal(statesync.Metadata{WorkerName: "openclaw-support-bot", TimestampMs: timestampMs})
	if err := os.WriteFile(filepath.Join(dir, ".clawster-backup.json"), meta, 0o600); err != nil {
		t.Fatal(err)
	}
}

func testTargetWithStore(t *testing.T, store *memStore) (*Target, *fakeWrangler, string) {
	t.Helper()
	config := &Config{
		ProfileName:      "support-bot",
		AccountID:        "acct-1",
		ProjectDir:       t.TempDir(),
		WorkersSubdomain: "acme",
	}
	stateDir := filepath.Join(config.ProjectDir, "state")
	syncer := statesync.NewSyncer(store, "openclaw-support-bot", stateDir)
	runner := newFakeWrangler()
	tgt, err := NewTargetWithRunner(config, runner, syncer)
	if err != nil {
		t.Fatalf("NewTargetWithRunner: %v", err)
	}
	return tgt, runner, stateDir
}

func TestStartRestoresNewerRemoteState(t *testing.T) {
	store := newMemStore()
	seedRemoteState(t, store, "remote-marker.txt")
	tgt, runner, stateDir := testTargetWithStore(t, store)
	writeLocalState(t, stateDir, 1)

	if err := tgt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "remote-marker.txt")); err != nil {
		t.Errorf("remote state was not restored: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0].args[0] != "deploy" {
		t.Errorf("wrangler calls = %q", runner.commands())
	}
}

func TestStartKeepsNewerLocalState(t *testing.T) {
	store := newMemStore()
	seedRemoteState(t, store, "remote-marker.txt")
	tgt, runner, stateDir := testTargetWithStore(t, store)
	writeLocalState(t, stateDir, time.Now().Add(time.Hour).UnixMilli())
	if err := os.WriteFile(filepath.Join(stateDir, "local-only.txt"), []byte("local"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := tgt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "remote-marker.txt")); !os.IsNotExist(err) {
		t.Error("newer local state was overwritten by the remote backup")
	}
	if _, err := os.Stat(filepath.Join(stateDir, "local-only.txt")); err != nil {
		t.Errorf("local state lost: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("wrangler calls = %q", runner.commands())
	}
}

func TestInstallRestoresRemoteStateOnFreshHost(t *testing.T) {
	store := newMemStore()
	seedRemoteState(t, store, "remote-marker.txt")
	tgt, _, stateDir := testTargetWithStore(t, store)

	result := tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot"})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "remote-marker.txt")); err != nil {
		t.Errorf("remote state was not restored on install: %v", err)
	}
}

func TestStartAbortsWhenRestoreFails(t *testing.T) {
	store := newMemStore()
	seedRemoteState(t, store, "remote-marker.txt")
	store.failGet["openclaw-support-bot/state.tar.gz"] = fmt.Errorf("r2 unreachable")
	tgt, runner, stateDir := testTargetWithStore(t, store)
	writeLocalState(t, stateDir, 1)

	if err := tgt.Start(context.Background()); err == nil {
		t.Fatal("start succeeded despite a failed restore of newer remote state")
	}
	if len(runner.calls) != 0 {
		t.Errorf("worker deployed on stale state: %q", runner.commands())
	}
}

func TestDestroyContinuesPastDeleteFailure(t *testing.T) {
	tgt, runner := testTarget(t)
	tgt.Install(context.Background(), target.InstallOptions{ProfileName: "support-bot"})
	runner.failOn["delete"] = fmt.Errorf("api unreachable")

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := os.Stat(tgt.config.ProjectDir); !os.IsNotExist(err) {
		t.Error("project directory survived destroy despite best-effort semantics")
	}
}
