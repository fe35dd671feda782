package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "gateway":
		return gatewayTemplate, nil
	case "cli":
		return cliTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const gatewayTemplate = `agent_id = "ual-gateway"
addr = ":9400"
cors_origins = ["http://localhost:3000"]
# api_token = "change-me"
key_file = "keys/ual-gateway.key"
atlas_dirs = []
watch_atlas = false
namespaces = ["warehouse_v1"]
registry_path = ""
strict_signatures = false
compression = "none"

[sync]
max_peers = 1024
peer_ttl = "30m"

[llm]
enabled = false
base_url = "http://localhost:11434/v1"
model = "gpt-4o-mini"
api_key_env = "OPENAI_API_KEY"
timeout = "20s"
`

const cliTemplate = `agent_id = "ualctl"
key_file = "~/.ual/ualctl.key"
atlas_dirs = []
namespaces = []
compression = "none"
strict_signatures = false
known_keys = "~/.ual/known_agents"
`
