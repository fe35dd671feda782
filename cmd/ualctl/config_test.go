package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ual/internal/testutil/testlog"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadAgentConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadAgentConfig("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.AgentID != "ualctl" || cfg.Compression != "none" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadAgentConfigOverrides(t *testing.T) {
	testlog.Start(t)
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ualctl.toml")
	writeFile(t, path, `agent_id = " edge-7 "
key_file = "~/.ual/edge-7.key"
atlas_dirs = ["/etc/ual/atlas", "  "]
namespaces = ["warehouse_v1", ""]
compression = "zstd"
strict_signatures = true
`)
	cfg, err := loadAgentConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AgentID != "edge-7" {
		t.Fatalf("agent id = %q", cfg.AgentID)
	}
	if cfg.KeyFile != filepath.Join(home, ".ual", "edge-7.key") {
		t.Fatalf("key file = %q", cfg.KeyFile)
	}
	if len(cfg.AtlasDirs) != 1 || cfg.AtlasDirs[0] != "/etc/ual/atlas" {
		t.Fatalf("atlas dirs = %v", cfg.AtlasDirs)
	}
	if len(cfg.Namespaces) != 1 || cfg.Namespaces[0] != "warehouse_v1" {
		t.Fatalf("namespaces = %v", cfg.Namespaces)
	}
	if cfg.Compression != "zstd" || !cfg.StrictSignatures {
		t.Fatalf("unexpected codec settings: %+v", cfg)
	}
}

func TestLoadAgentConfigKeepsDefaultWhenIDBlank(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ualctl.toml")
	writeFile(t, path, "agent_id = \"\"\n")
	cfg, err := loadAgentConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AgentID != "ualctl" {
		t.Fatalf("agent id = %q", cfg.AgentID)
	}
}

func TestLoadAgentConfigRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ualctl.toml")
	writeFile(t, path, "agnet_id = \"typo\"\n")
	if _, err := loadAgentConfig(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
