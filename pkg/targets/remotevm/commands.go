// Package remotevm implements the deployment target that installs and
// manages the gateway on a remote Linux host over SSH.
package remotevm

import (
	"fmt"
	"strings"
)

// serviceName returns the systemd unit name for a profile.
func serviceName(profileName string) string {
	return fmt.Sprintf("openclaw-%s", profileName)
}

// unitPath returns the systemd unit file path for a profile.
func unitPath(profileName string) string {
	return fmt.Sprintf("/etc/systemd/system/%s.service", serviceName(profileName))
}

// configDir returns the remote configuration directory for a profile.
func configDir(profileName string) string {
	return fmt.Sprintf("/etc/openclaw/%s", profileName)
}

// configPath returns the remote config file path for a profile.
func configPath(profileName string) string {
	return configDir(profileName) + "/openclaw.json"
}

// installCommands builds the command sequence that installs the gateway
// package, run before the unit file upload. All commands run with sudo.
func installCommands(profileName, version string) []string {
	pkg := "openclaw"
	if version != "" {
		pkg = fmt.Sprintf("openclaw@%s", version)
	}
	return []string{
		"apt-get update -y",
		"apt-get install -y nodejs npm",
		fmt.Sprintf("npm install -g %s", pkg),
		fmt.Sprintf("mkdir -p %s", configDir(profileName)),
	}
}

// enableCommands registers the uploaded unit with systemd.
func enableCommands(profileName string) []string {
	return []string{
		"systemctl daemon-reload",
		fmt.Sprintf("systemctl enable %s", serviceName(profileName)),
	}
}

// systemdUnit renders the gateway unit file for a profile.
func systemdUnit(profileName, user string, port int) string {
	return fmt.Sprintf(`[Unit]
Description=OpenClaw gateway (%s)
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
Environment=OPENCLAW_CONFIG=%s
ExecStart=/usr/local/bin/openclaw gateway --port %d
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`, profileName, user, configPath(profileName), port)
}

// fail2banJail renders the intrusion-ban daemon configuration: five
// retries within a ten-minute window earn a one-hour ban.
func fail2banJail(sshPort int) string {
	return fmt.Sprintf(`[DEFAULT]
bantime = 1h
findtime = 10m
maxretry = 5

[sshd]
enabled = true
port = %d
`, sshPort)
}

// hardeningCommands builds the one-time host hardening sequence. Steps
// run in order with sudo; any failure aborts the sequence, since an
// unhardened host must not be reported as installed.
func hardeningCommands(sshPort, gatewayPort int, extraPorts []int, user string) []string {
	cmds := []string{
		// SSH daemon: key-only auth, no root login.
		"sed -i 's/^#\\?PasswordAuthentication.*/PasswordAuthentication no/' /etc/ssh/sshd_config",
		"sed -i 's/^#\\?PermitRootLogin.*/PermitRootLogin no/' /etc/ssh/sshd_config",

		// Firewall: default deny inbound, explicit allows only.
		"apt-get install -y ufw",
		"ufw default deny incoming",
		"ufw default allow outgoing",
		fmt.Sprintf("ufw allow %d/tcp", sshPort),
		fmt.Sprintf("ufw allow %d/tcp", gatewayPort),
	}
	for _, port := range extraPorts {
		cmds = append(cmds, fmt.Sprintf("ufw allow %d/tcp", port))
	}
	cmds = append(cmds,
		"ufw --force enable",

		// Intrusion banning.
		"apt-get install -y fail2ban",
		"systemctl enable fail2ban",
		"systemctl restart fail2ban",

		// Automatic security upgrades.
		"apt-get install -y unattended-upgrades",
		"dpkg-reconfigure -f noninteractive unattended-upgrades",

		// Dedicated non-login service user.
		fmt.Sprintf("id -u %s >/dev/null 2>&1 || useradd --system --create-home --shell /usr/sbin/nologin %s", user, user),

		// Apply sshd_config changes.
		"systemctl restart sshd",
	)
	return cmds
}

// lifecycleCommand returns the systemctl invocation for an action on the
// profile's gateway unit.
func lifecycleCommand(action, profileName string) string {
	return fmt.Sprintf("systemctl %s %s", action, serviceName(profileName))
}

// logsCommand returns the journalctl invocation for the profile's unit.
func logsCommand(profileName string, tailLines int) string {
	return fmt.Sprintf("journalctl -u %s -n %d --no-pager -o cat", serviceName(profileName), tailLines)
}

// destroyCommands builds the teardown sequence. Steps are individually
// best-effort on the caller side.
func destroyCommands(profileName string) []string {
	return []string{
		lifecycleCommand("stop", profileName),
		fmt.Sprintf("systemctl disable %s", serviceName(profileName)),
		fmt.Sprintf("rm -f %s", unitPath(profileName)),
		fmt.Sprintf("rm -rf %s", configDir(profileName)),
		"systemctl daemon-reload",
	}
}

// splitLogLines splits journalctl output into trimmed lines.
func splitLogLines(output string) []string {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}
