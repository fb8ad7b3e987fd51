package remotevm

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clawster/clawster/pkg/target"
	"github.com/clawster/clawster/pkg/transports/ssh"
)

// fakeTransport records the command and upload stream and lets tests
// inject failures by command substring.
type fakeTransport struct {
	commands []string
	uploads  map[string][]byte
	failOn   string
	stdout   map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{uploads: map[string][]byte{}, stdout: map[string]string{}}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                      { return nil }

func (f *fakeTransport) Exec(ctx context.Context, cmd string) (string, string, error) {
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && strings.Contains(cmd, f.failOn) {
		return "", "boom", fmt.Errorf("command failed")
	}
	for prefix, out := range f.stdout {
		if strings.HasPrefix(cmd, prefix) {
			return out, "", nil
		}
	}
	return "", "", nil
}

func (f *fakeTransport) ExecSudo(ctx context.Context, cmd string) (string, string, error) {
	return f.Exec(ctx, cmd)
}

func (f *fakeTransport) UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	if f.failOn != "" && strings.Contains(remotePath, f.failOn) {
		return fmt.Errorf("upload failed")
	}
	f.uploads[remotePath] = data
	return nil
}

func (f *fakeTransport) Info() ssh.ConnectionInfo {
	return ssh.ConnectionInfo{Host: "10.0.0.5", Port: 22, User: "ubuntu", ConnectedAt: time.Now()}
}

func newTestTarget(t *testing.T, transport ssh.Transport) *Target {
	t.Helper()
	cfg := DefaultConfig("support-bot", "10.0.0.5")
	cfg.ExtraPorts = []int{8443}
	tgt, err := NewTarget(cfg, transport)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return tgt
}

func TestInstallUploadsUnitAndHardens(t *testing.T) {
	transport := newFakeTransport()
	tgt := newTestTarget(t, transport)

	result := tgt.Install(context.Background(), target.InstallOptions{Version: "1.2.3", Port: 19000})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}
	if result.ServiceName != "openclaw-support-bot" {
		t.Errorf("service name = %s", result.ServiceName)
	}

	unit, ok := transport.uploads["/etc/systemd/system/openclaw-support-bot.service"]
	if !ok {
		t.Fatal("unit file was not uploaded")
	}
	if !strings.Contains(string(unit), "--port 19000") {
		t.Error("unit should carry the gateway port")
	}
	if !strings.Contains(string(unit), "User=openclaw") {
		t.Error("unit should run as the service user")
	}

	jail, ok := transport.uploads["/etc/fail2ban/jail.local"]
	if !ok {
		t.Fatal("fail2ban jail was not uploaded")
	}
	for _, want := range []string{"bantime = 1h", "findtime = 10m", "maxretry = 5"} {
		if !strings.Contains(string(jail), want) {
			t.Errorf("jail missing %q", want)
		}
	}

	joined := strings.Join(transport.commands, "\n")
	for _, want := range []string{
		"npm install -g openclaw@1.2.3",
		"ufw default deny incoming",
		"ufw allow 22/tcp",
		"ufw allow 19000/tcp",
		"ufw allow 8443/tcp",
		"PasswordAuthentication no",
		"PermitRootLogin no",
		"systemctl restart sshd",
		"useradd --system",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected command containing %q", want)
		}
	}
}

func TestHardeningFailureFailsInstall(t *testing.T) {
	transport := newFakeTransport()
	transport.failOn = "ufw --force enable"
	tgt := newTestTarget(t, transport)

	result := tgt.Install(context.Background(), target.InstallOptions{Port: 19000})
	if result.Success {
		t.Fatal("install should fail when hardening fails")
	}
	if !strings.Contains(result.Message, "hardening") {
		t.Errorf("message should name hardening: %s", result.Message)
	}
}

func TestSkipHardeningOmitsFirewallSteps(t *testing.T) {
	transport := newFakeTransport()
	cfg := DefaultConfig("support-bot", "10.0.0.5")
	cfg.SkipHardening = true
	tgt, err := NewTarget(cfg, transport)
	if err != nil {
		t.Fatal(err)
	}

	result := tgt.Install(context.Background(), target.InstallOptions{Port: 19000})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}
	if strings.Contains(strings.Join(transport.commands, "\n"), "ufw") {
		t.Error("hardening steps should be skipped")
	}
}

func TestConfigureUploadsTransformedConfig(t *testing.T) {
	transport := newFakeTransport()
	tgt := newTestTarget(t, transport)

	result := tgt.Configure(context.Background(), target.ConfigPayload{
		GatewayPort: 19000,
		Config: map[string]any{
			"gateway": map[string]any{"port": 12345},
		},
	})
	if !result.Success {
		t.Fatalf("configure failed: %s", result.Message)
	}

	data, ok := transport.uploads["/etc/openclaw/support-bot/openclaw.json"]
	if !ok {
		t.Fatal("config was not uploaded")
	}
	if strings.Contains(string(data), "12345") {
		t.Error("gateway.port should be stripped before upload")
	}
	if !strings.Contains(string(data), `"bind": "lan"`) {
		t.Error("gateway.bind should be set")
	}
}

func TestLifecycleUsesSystemctl(t *testing.T) {
	transport := newFakeTransport()
	tgt := newTestTarget(t, transport)

	if err := tgt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tgt.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	joined := strings.Join(transport.commands, "\n")
	if !strings.Contains(joined, "systemctl start openclaw-support-bot") {
		t.Error("missing start command")
	}
	if !strings.Contains(joined, "systemctl restart openclaw-support-bot") {
		t.Error("missing restart command")
	}
}

func TestStartErrorPropagates(t *testing.T) {
	transport := newFakeTransport()
	transport.failOn = "systemctl start"
	tgt := newTestTarget(t, transport)

	if err := tgt.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetStatusMapsUnitState(t *testing.T) {
	tests := []struct {
		unitState string
		want      target.State
	}{
		{"active", target.StateRunning},
		{"inactive", target.StateStopped},
		{"failed", target.StateError},
	}
	for _, tt := range tests {
		t.Run(tt.unitState, func(t *testing.T) {
			transport := newFakeTransport()
			transport.stdout["systemctl is-active"] = tt.unitState
			tgt := newTestTarget(t, transport)

			status := tgt.GetStatus(context.Background())
			if status.State != tt.want {
				t.Errorf("state = %s, want %s", status.State, tt.want)
			}
		})
	}
}

func TestGetStatusNotInstalled(t *testing.T) {
	transport := newFakeTransport()
	transport.stdout["systemctl is-active"] = "unknown"
	transport.failOn = "test -f"
	tgt := newTestTarget(t, transport)

	status := tgt.GetStatus(context.Background())
	if status.State != target.StateNotInstalled {
		t.Errorf("state = %s, want not-installed", status.State)
	}
}

func TestGetLogs(t *testing.T) {
	transport := newFakeTransport()
	transport.stdout["journalctl"] = "line one\nline two"
	tgt := newTestTarget(t, transport)

	lines := tgt.GetLogs(context.Background(), target.LogOptions{TailLines: 50})
	if len(lines) != 2 || lines[1] != "line two" {
		t.Errorf("lines = %v", lines)
	}
	if !strings.Contains(transport.commands[0], "-n 50") {
		t.Errorf("tail size not honoured: %s", transport.commands[0])
	}
}

func TestDestroyContinuesPastFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.failOn = "systemctl disable"
	tgt := newTestTarget(t, transport)

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy should not escalate step failures: %v", err)
	}
	joined := strings.Join(transport.commands, "\n")
	if !strings.Contains(joined, "rm -rf /etc/openclaw/support-bot") {
		t.Error("config dir removal should still run after a failed step")
	}
}

func TestGetEndpoint(t *testing.T) {
	transport := newFakeTransport()
	tgt := newTestTarget(t, transport)
	tgt.Install(context.Background(), target.InstallOptions{Port: 19000})

	ep, err := tgt.GetEndpoint(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ep.URL() != "ws://10.0.0.5:19000" {
		t.Errorf("endpoint = %s", ep.URL())
	}
}
