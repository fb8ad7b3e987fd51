package cloudflare

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManifestContent(t *testing.T) {
	manifest := renderManifest(scaffoldParams{
		WorkerName: "openclaw-support-bot",
		Port:       18789,
		Vars:       map[string]string{"LOG_LEVEL": "debug", "REGION": "weur"},
	})

	for _, want := range []string{
		`name = "openclaw-support-bot"`,
		`main = "src/index.js"`,
		"[[containers]]",
		`class_name = "Sandbox"`,
		"max_instances = 1",
		"[[durable_objects.bindings]]",
		`name = "SANDBOX"`,
		`new_sqlite_classes = ["Sandbox"]`,
		"[vars]",
		`LOG_LEVEL = "debug"`,
		`REGION = "weur"`,
	} {
		if !strings.Contains(manifest, want) {
			t.Errorf("manifest is missing %q:\n%s", want, manifest)
		}
	}
}

func TestManifestWithoutVarsOmitsSection(t *testing.T) {
	manifest := renderManifest(scaffoldParams{WorkerName: "openclaw-a", Port: 18789})
	if strings.Contains(manifest, "[vars]") {
		t.Errorf("empty vars rendered a [vars] section:\n%s", manifest)
	}
}

func TestDockerfilePinsVersion(t *testing.T) {
	pinned := renderDockerfile(scaffoldParams{Port: 18789, Version: "1.2.3"})
	if !strings.Contains(pinned, "npm install -g openclaw@1.2.3") {
		t.Errorf("pinned Dockerfile:\n%s", pinned)
	}
	if !strings.Contains(pinned, "EXPOSE 18789") {
		t.Errorf("Dockerfile missing port:\n%s", pinned)
	}

	latest := renderDockerfile(scaffoldParams{Port: 18789})
	if !strings.Contains(latest, "npm install -g openclaw\n") {
		t.Errorf("unpinned Dockerfile:\n%s", latest)
	}
}

func TestStartScriptMaterializesConfig(t *testing.T) {
	script := renderStartScript(scaffoldParams{Port: 19000})
	for _, want := range []string{
		"#!/bin/sh",
		"$OPENCLAW_CONFIG_JSON",
		"/etc/openclaw/openclaw.json",
		"chmod 600",
		"exec openclaw gateway --port 19000",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("start script is missing %q:\n%s", want, script)
		}
	}
}

func TestWorkerEntryProxiesToContainer(t *testing.T) {
	entry := renderWorkerEntry(scaffoldParams{WorkerName: "openclaw-support-bot", Port: 18789})
	if !strings.Contains(entry, `getSandbox(env.SANDBOX, "openclaw-support-bot")`) {
		t.Errorf("worker entry:\n%s", entry)
	}
	if !strings.Contains(entry, "containerFetch(request, 18789)") {
		t.Errorf("worker entry does not target the gateway port:\n%s", entry)
	}
}

func TestScaffoldProjectWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	err := scaffoldProject(dir, scaffoldParams{WorkerName: "openclaw-a", Port: 18789})
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}

	for _, name := range []string{
		"wrangler.toml",
		"Dockerfile",
		"start.sh",
		filepath.Join("src", "index.js"),
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}
