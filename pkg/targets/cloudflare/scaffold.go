package cloudflare

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// scaffoldParams carries the inputs for the generated worker project.
type scaffoldParams struct {
	WorkerName string
	Port       int
	Version    string
	Vars       map[string]string
}

// renderManifest renders wrangler.toml. Only plain variables ever appear
// here; secrets travel through `wrangler secret put` and must never be
// written to the manifest.
func renderManifest(params scaffoldParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name = %q\n", params.WorkerName)
	b.WriteString("main = \"src/index.js\"\n")
	b.WriteString("compatibility_date = \"2025-06-01\"\n")
	b.WriteString("\n[[containers]]\n")
	b.WriteString("class_name = \"Sandbox\"\n")
	b.WriteString("image = \"./Dockerfile\"\n")
	b.WriteString("max_instances = 1\n")
	b.WriteString("\n[[durable_objects.bindings]]\n")
	b.WriteString("name = \"SANDBOX\"\n")
	b.WriteString("class_name = \"Sandbox\"\n")
	b.WriteString("\n[[migrations]]\n")
	b.WriteString("tag = \"v1\"\n")
	b.WriteString("new_sqlite_classes = [\"Sandbox\"]\n")

	if len(params.Vars) > 0 {
		b.WriteString("\n[vars]\n")
		keys := make([]string, 0, len(params.Vars))
		for key := range params.Vars {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "%s = %q\n", key, params.Vars[key])
		}
	}
	return b.String()
}

// renderDockerfile renders the sandbox container image definition.
func renderDockerfile(params scaffoldParams) string {
	pkg := "openclaw"
	if params.Version != "" {
		pkg = "openclaw@" + params.Version
	}
	return fmt.Sprintf(`FROM docker.io/cloudflare/sandbox:0.3.0

RUN npm install -g %s
COPY start.sh /usr/local/bin/start-openclaw
RUN chmod +x /usr/local/bin/start-openclaw

EXPOSE %d
CMD ["/usr/local/bin/start-openclaw"]
`, pkg, params.Port)
}

// renderStartScript renders the container entry script. The gateway
// config arrives as a worker secret in the environment; the script
// materializes it on the ephemeral disk before starting.
func renderStartScript(params scaffoldParams) string {
	return fmt.Sprintf(`#!/bin/sh
set -eu

mkdir -p /etc/openclaw
if [ -n "${OPENCLAW_CONFIG_JSON:-}" ]; then
  printf '%%s' "$OPENCLAW_CONFIG_JSON" > /etc/openclaw/openclaw.json
  chmod 600 /etc/openclaw/openclaw.json
fi

export OPENCLAW_CONFIG=/etc/openclaw/openclaw.json
exec openclaw gateway --port %d
`, params.Port)
}

// renderWorkerEntry renders the worker script proxying requests into the
// sandbox container.
func renderWorkerEntry(params scaffoldParams) string {
	return fmt.Sprintf(`import { getSandbox } from "@cloudflare/sandbox";
export { Sandbox } from "@cloudflare/sandbox";

export default {
  async fetch(request, env) {
    const sandbox = getSandbox(env.SANDBOX, %q);
    return sandbox.containerFetch(request, %d);
  },
};
`, params.WorkerName, params.Port)
}

// scaffoldProject writes the full worker project into dir.
func scaffoldProject(dir string, params scaffoldParams) error {
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o700); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	files := map[string]string{
		"wrangler.toml": renderManifest(params),
		"Dockerfile":    renderDockerfile(params),
		"start.sh":      renderStartScript(params),

		filepath.Join("src", "index.js"): renderWorkerEntry(params),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
