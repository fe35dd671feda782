package main

import (
	"context"
	"strings"

	"github.com/danmuck/ual/internal/agent"
	"github.com/danmuck/ual/internal/auth"
	"github.com/danmuck/ual/internal/config"
	"github.com/danmuck/ual/internal/server"
	"github.com/rs/zerolog/log"
)

func run(ctx context.Context, configPath string) error {
	gw, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		return err
	}
	g, a, err := build(gw)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.KeyCreated {
		log.Info().Str("component", "uald").Str("path", gw.KeyFile).Msg("generated signing key")
	}
	go a.WatchAtlas(ctx)

	g.SetReady(true)
	return g.Serve(ctx)
}

// build opens the agent and wraps it in a gateway. The caller owns the
// returned agent.
func build(gw config.GatewayConfig) (*server.Gateway, *agent.Agent, error) {
	cfg, err := agent.FromGateway(gw)
	if err != nil {
		return nil, nil, err
	}
	a, err := agent.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	srvCfg := server.Config{
		Addr:        gw.Addr,
		CorsOrigins: gw.CorsOrigins,
	}
	if token := strings.TrimSpace(gw.APIToken); token != "" {
		srvCfg.Auth = auth.StaticToken{Token: token}
	}
	return server.Appear(srvCfg, a.Codec), a, nil
}
