package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

var validate = validator.New()

// GatewayConfig is the uald file config.
type GatewayConfig struct {
	AgentID          string     `toml:"agent_id" validate:"required,max=128"`
	Addr             string     `toml:"addr" validate:"required"`
	CorsOrigins      []string   `toml:"cors_origins" validate:"dive,required"`
	APIToken         string     `toml:"api_token"`
	KeyFile          string     `toml:"key_file"`
	AtlasDirs        []string   `toml:"atlas_dirs" validate:"dive,required"`
	WatchAtlas       bool       `toml:"watch_atlas"`
	Namespaces       []string   `toml:"namespaces" validate:"dive,required"`
	RegistryPath     string     `toml:"registry_path"`
	StrictSignatures bool       `toml:"strict_signatures"`
	Compression      string     `toml:"compression" validate:"omitempty,oneof=none lz4 zstd"`
	Sync             SyncConfig `toml:"sync"`
	LLM              LLMConfig  `toml:"llm"`
}

type SyncConfig struct {
	MaxPeers uint64 `toml:"max_peers" validate:"gte=1"`
	PeerTTL  string `toml:"peer_ttl"`
}

type LLMConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url" validate:"omitempty,url"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	Timeout   string `toml:"timeout"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AgentID:     "ual-gateway",
		Addr:        ":9400",
		Compression: "none",
		Sync: SyncConfig{
			MaxPeers: 1024,
			PeerTTL:  "30m",
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   "20s",
		},
	}
}

// LoadGatewayConfig reads path over the defaults and validates the result.
func LoadGatewayConfig(path string) (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	if err := loadToml(path, &cfg); err != nil {
		return GatewayConfig{}, err
	}
	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Compression == "" {
		cfg.Compression = "none"
	}
	if err := ValidateGatewayConfig(cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateGatewayConfig(cfg GatewayConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if strings.ContainsAny(cfg.AgentID, " \t\n") {
		return fmt.Errorf("agent_id must not contain whitespace")
	}
	if _, err := cfg.PeerTTL(); err != nil {
		return err
	}
	if cfg.LLM.Enabled {
		if _, err := cfg.LLMTimeout(); err != nil {
			return err
		}
		if strings.TrimSpace(cfg.LLM.Model) == "" {
			return fmt.Errorf("llm.model is required when llm is enabled")
		}
	}
	if cfg.WatchAtlas && len(cfg.AtlasDirs) == 0 {
		return fmt.Errorf("watch_atlas requires at least one atlas_dirs entry")
	}
	return nil
}

// PeerTTL parses sync.peer_ttl; empty means the tracker default.
func (c GatewayConfig) PeerTTL() (time.Duration, error) {
	return parseDuration("sync.peer_ttl", c.Sync.PeerTTL)
}

func (c GatewayConfig) LLMTimeout() (time.Duration, error) {
	return parseDuration("llm.timeout", c.LLM.Timeout)
}

// APIKey reads the model API key from the configured environment variable.
func (c GatewayConfig) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return fmt.Errorf("gateway config invalid: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a url", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
