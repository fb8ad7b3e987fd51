package azurevm

import (
	"encoding/base64"
	"fmt"
)

// cloudInit renders the cloud-init payload that installs the gateway and
// registers its systemd unit on first boot. Azure expects the payload
// base64-encoded in the VM's customData.
func cloudInit(profileName string, port int, version string) string {
	pkg := "openclaw"
	if version != "" {
		pkg = fmt.Sprintf("openclaw@%s", version)
	}

	return fmt.Sprintf(`#cloud-config
package_update: true
packages:
  - nodejs
  - npm
write_files:
  - path: /etc/systemd/system/openclaw.service
    permissions: "0644"
    content: |
      [Unit]
      Description=OpenClaw gateway (%s)
      After=network-online.target
      Wants=network-online.target

      [Service]
      Type=simple
      User=openclaw
      Environment=OPENCLAW_CONFIG=/etc/openclaw/openclaw.json
      ExecStart=/usr/local/bin/openclaw gateway --port %d
      Restart=on-failure
      RestartSec=5

      [Install]
      WantedBy=multi-user.target
runcmd:
  - npm install -g %s
  - mkdir -p /etc/openclaw
  - id -u openclaw >/dev/null 2>&1 || useradd --system --create-home --shell /usr/sbin/nologin openclaw
  - systemctl daemon-reload
  - systemctl enable --now openclaw
`, profileName, port, pkg)
}

// encodeCustomData base64-encodes a cloud-init payload for customData.
func encodeCustomData(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}
