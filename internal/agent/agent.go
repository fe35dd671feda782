// Package agent assembles a codec and everything it depends on from
// process settings: atlas sources, concept registry, signing key, key
// ring, compiler and delta tracker.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/compiler"
	"github.com/danmuck/ual/internal/compiler/llm"
	"github.com/danmuck/ual/internal/config"
	"github.com/danmuck/ual/internal/message"
	"github.com/danmuck/ual/internal/registry"
	"github.com/danmuck/ual/internal/signing"
	"github.com/danmuck/ual/internal/syncstate"
	"github.com/rs/zerolog/log"
)

var ErrInvalidAgentID = errors.New("agent: invalid agent id")

type LLMConfig struct {
	Enabled bool
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type Config struct {
	AgentID string
	// KeyFile holds the OpenSSH Ed25519 key; it is created when
	// missing. Empty means an ephemeral key.
	KeyFile string
	// KnownKeys is an authorized_keys style file pinned into the key
	// ring, one agent per line with the agent id as comment.
	KnownKeys        string
	AtlasDirs        []string
	WatchAtlas       bool
	Namespaces       []string
	RegistryPath     string
	StrictSignatures bool
	Compression      string
	Sync             syncstate.Config
	LLM              LLMConfig
}

// FromGateway maps a validated gateway file config.
func FromGateway(cfg config.GatewayConfig) (Config, error) {
	ttl, err := cfg.PeerTTL()
	if err != nil {
		return Config{}, err
	}
	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return Config{}, err
	}
	return Config{
		AgentID:          cfg.AgentID,
		KeyFile:          cfg.KeyFile,
		AtlasDirs:        cfg.AtlasDirs,
		WatchAtlas:       cfg.WatchAtlas,
		Namespaces:       cfg.Namespaces,
		RegistryPath:     cfg.RegistryPath,
		StrictSignatures: cfg.StrictSignatures,
		Compression:      cfg.Compression,
		Sync:             syncstate.Config{MaxPeers: cfg.Sync.MaxPeers, PeerTTL: ttl},
		LLM: LLMConfig{
			Enabled: cfg.LLM.Enabled,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.APIKey(),
			Timeout: timeout,
		},
	}, nil
}

type Agent struct {
	cfg      Config
	Atlas    *atlas.Atlas
	Registry *registry.Registry
	Signer   *signing.Ed25519Signer
	KeyRing  *signing.KeyRing
	Tracker  *syncstate.Tracker
	Codec    *message.Codec
	// KeyCreated reports that KeyFile did not exist and was generated.
	KeyCreated bool

	closeOnce sync.Once
}

// Open builds an Agent. Any partially opened resources are released on
// error.
func Open(cfg Config) (*Agent, error) {
	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	if cfg.AgentID == "" || strings.ContainsAny(cfg.AgentID, " \t\n") {
		return nil, ErrInvalidAgentID
	}
	compression, err := message.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, Atlas: atlas.New(), KeyRing: signing.NewKeyRing()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	for _, dir := range cfg.AtlasDirs {
		n, err := a.Atlas.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("agent: load atlas dir %s: %w", dir, err)
		}
		log.Debug().Str("component", "agent").Str("dir", dir).Int("files", n).Msg("atlas extensions loaded")
	}

	if cfg.RegistryPath != "" {
		a.Registry, err = registry.Open(registry.Config{Path: cfg.RegistryPath})
		if err != nil {
			return nil, err
		}
		if err := a.Registry.SeedDefaults(); err != nil {
			return nil, fmt.Errorf("agent: seed registry: %w", err)
		}
		n, err := a.Registry.Apply(a.Atlas)
		if err != nil {
			return nil, fmt.Errorf("agent: apply registry: %w", err)
		}
		log.Debug().Str("component", "agent").Int("concepts", n).Msg("registry applied")
	}

	for _, ns := range cfg.Namespaces {
		if err := a.Atlas.Activate(ns); err != nil {
			return nil, fmt.Errorf("agent: activate namespace: %w", err)
		}
	}

	if cfg.KeyFile != "" {
		a.Signer, a.KeyCreated, err = signing.LoadOrCreate(cfg.KeyFile, cfg.AgentID)
	} else {
		a.Signer, err = signing.GenerateEd25519()
	}
	if err != nil {
		return nil, err
	}
	if cfg.KnownKeys != "" {
		n, err := a.KeyRing.LoadAuthorizedKeys(cfg.KnownKeys)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("component", "agent").Int("keys", n).Msg("known agent keys pinned")
	}

	a.Tracker = syncstate.New(cfg.Sync)
	a.Codec, err = message.New(message.Options{
		AgentID:          cfg.AgentID,
		Atlas:            a.Atlas,
		Compiler:         buildCompiler(cfg.LLM, a.Atlas),
		Signer:           a.Signer,
		KeyRing:          a.KeyRing,
		Tracker:          a.Tracker,
		Compression:      compression,
		StrictSignatures: cfg.StrictSignatures,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	log.Info().
		Str("component", "agent").
		Str("agent", cfg.AgentID).
		Strs("namespaces", a.Atlas.Active()).
		Bool("strict", cfg.StrictSignatures).
		Str("compression", string(compression)).
		Bool("llm", cfg.LLM.Enabled).
		Msg("agent ready")
	return a, nil
}

func buildCompiler(cfg LLMConfig, a *atlas.Atlas) compiler.Compiler {
	rule := compiler.NewRule(a)
	if !cfg.Enabled {
		return rule
	}
	llmCfg := llm.DefaultConfig()
	llmCfg.BaseURL = cfg.BaseURL
	llmCfg.APIKey = cfg.APIKey
	if cfg.Model != "" {
		llmCfg.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		llmCfg.Timeout = cfg.Timeout
	}
	return llm.NewWithFallback(llmCfg, a, rule)
}

// WatchAtlas follows every configured atlas directory until ctx ends.
// It returns immediately when watching is off.
func (a *Agent) WatchAtlas(ctx context.Context) {
	if !a.cfg.WatchAtlas {
		return
	}
	var wg sync.WaitGroup
	for _, dir := range a.cfg.AtlasDirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			if err := a.Atlas.Watch(ctx, dir, nil); err != nil {
				log.Warn().Err(err).Str("component", "agent").Str("dir", dir).Msg("atlas watch stopped")
			}
		}(dir)
	}
	wg.Wait()
}

func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		if a.Codec != nil {
			a.Codec.Close()
		}
		if a.Tracker != nil {
			a.Tracker.Close()
		}
		if a.Registry != nil {
			if err := a.Registry.Close(); err != nil {
				log.Warn().Err(err).Str("component", "agent").Msg("registry close failed")
			}
		}
	})
}
