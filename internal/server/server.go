// Package server exposes a codec over HTTP: encode, decode and
// handshake at the boundary, plus atlas lookups and health probes.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/ual/internal/auth"
	"github.com/danmuck/ual/internal/logging"
	"github.com/danmuck/ual/internal/message"
	"github.com/danmuck/ual/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr        string
	CorsOrigins []string
	// Auth guards /v1 routes when set. Probes and /metrics stay open.
	Auth auth.Validator
}

type Gateway struct {
	ID       string
	Addr     string
	Appeared time.Time

	codec  *message.Codec
	router *gin.Engine
	ready  atomic.Bool
}

// Appear builds a gateway around codec with routes registered. It
// reports not ready until SetReady(true).
func Appear(cfg Config, codec *message.Codec) *Gateway {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(logging.Component("http")))
	r.Use(observability.RequestMetricsMiddleware(codec.AgentID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(cfg.CorsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	g := &Gateway{
		ID:       codec.AgentID(),
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		codec:    codec,
		router:   r,
	}
	g.registerRoutes(cfg.Auth)
	return g
}

func (g *Gateway) HTTPRouter() *gin.Engine {
	return g.router
}

func (g *Gateway) SetReady(ready bool) {
	g.ready.Store(ready)
}

func (g *Gateway) Ready() bool {
	return g.ready.Load()
}

// Serve listens on Addr until ctx is cancelled, then drains in-flight
// requests.
func (g *Gateway) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.Addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "server").Str("agent", g.ID).Str("addr", g.Addr).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	g.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Str("component", "server").Str("agent", g.ID).Msg("gateway stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
