package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ual/internal/agent"
)

type fileConfig struct {
	AgentID          string   `toml:"agent_id"`
	KeyFile          string   `toml:"key_file"`
	KnownKeys        string   `toml:"known_keys"`
	AtlasDirs        []string `toml:"atlas_dirs"`
	Namespaces       []string `toml:"namespaces"`
	RegistryPath     string   `toml:"registry_path"`
	Compression      string   `toml:"compression"`
	StrictSignatures bool     `toml:"strict_signatures"`
}

func defaultAgentConfig() agent.Config {
	return agent.Config{
		AgentID:     "ualctl",
		Compression: "none",
	}
}

// loadAgentConfig applies the keys present in path over the defaults.
// An empty path yields the defaults.
func loadAgentConfig(path string) (agent.Config, error) {
	cfg := defaultAgentConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return agent.Config{}, fmt.Errorf("load ualctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return agent.Config{}, fmt.Errorf("load ualctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("agent_id") {
		if id := strings.TrimSpace(raw.AgentID); id != "" {
			cfg.AgentID = id
		}
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = expandHome(strings.TrimSpace(raw.KeyFile))
	}
	if meta.IsDefined("known_keys") {
		cfg.KnownKeys = expandHome(strings.TrimSpace(raw.KnownKeys))
	}
	if meta.IsDefined("atlas_dirs") {
		cfg.AtlasDirs = normalizePaths(raw.AtlasDirs)
	}
	if meta.IsDefined("namespaces") {
		cfg.Namespaces = normalizeList(raw.Namespaces)
	}
	if meta.IsDefined("registry_path") {
		cfg.RegistryPath = expandHome(strings.TrimSpace(raw.RegistryPath))
	}
	if meta.IsDefined("compression") {
		cfg.Compression = strings.TrimSpace(raw.Compression)
	}
	if meta.IsDefined("strict_signatures") {
		cfg.StrictSignatures = raw.StrictSignatures
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func normalizePaths(in []string) []string {
	out := normalizeList(in)
	for i, p := range out {
		out[i] = expandHome(p)
	}
	return out
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
