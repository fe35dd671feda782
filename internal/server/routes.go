package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/auth"
	"github.com/danmuck/ual/internal/message"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type EncodeRequest struct {
	Text       string               `json:"text"`
	ReceiverID string               `json:"receiver_id"`
	ContextID  string               `json:"context_id"`
	Embeddings map[string][]float32 `json:"embeddings"`
	UseDelta   bool                 `json:"use_delta"`
}

type EnvelopeResponse struct {
	Envelope string `json:"envelope"`
	Bytes    int    `json:"bytes"`
}

type DecodeRequest struct {
	// Envelope is base64 in JSON.
	Envelope []byte `json:"envelope" binding:"required"`
}

type HandshakeRequest struct {
	Capabilities []string `json:"capabilities"`
	ComputePower int64    `json:"compute_power"`
	Namespaces   []string `json:"namespaces"`
}

type ConceptResponse struct {
	ID       string `json:"id"`
	Value    uint32 `json:"value"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const kindBadRequest = "bad_request"

func (g *Gateway) registerRoutes(guard auth.Validator) {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(g.Appeared).String(),
			"service": g.ID,
			"version": message.ProtocolVersion,
		})
	})

	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !g.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   g.Ready(),
			"uptime":  time.Since(g.Appeared).String(),
			"service": g.ID,
			"version": message.ProtocolVersion,
		})
	})

	v1 := g.router.Group("/v1")
	if guard != nil {
		v1.Use(auth.Require(guard))
	}
	v1.POST("/encode", g.handleEncode)
	v1.POST("/decode", g.handleDecode)
	v1.POST("/handshake", g.handleHandshake)
	v1.GET("/status", g.handleStatus)
	v1.GET("/atlas/concepts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"concepts": g.codec.Atlas().Concepts()})
	})
	v1.GET("/atlas/resolve/:name", g.handleResolve)
	v1.GET("/atlas/describe/:id", g.handleDescribe)
}

func (g *Gateway) handleEncode(c *gin.Context) {
	var req EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kindBadRequest})
		return
	}
	out, err := g.codec.Encode(c.Request.Context(), req.Text, req.ReceiverID, req.ContextID, req.Embeddings, req.UseDelta)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Str("request_id", c.GetString("request_id")).Msg("encode failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "encode_failed"})
		return
	}
	c.JSON(http.StatusOK, EnvelopeResponse{Envelope: base64.StdEncoding.EncodeToString(out), Bytes: len(out)})
}

func (g *Gateway) handleDecode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kindBadRequest})
		return
	}
	decoded, err := g.codec.Decode(c.Request.Context(), req.Envelope)
	if err != nil {
		var decodeErr *message.DecodeError
		if errors.As(err, &decodeErr) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(decodeErr.Kind)})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "decode_failed"})
		return
	}
	c.JSON(http.StatusOK, decoded)
}

func (g *Gateway) handleHandshake(c *gin.Context) {
	var req HandshakeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kindBadRequest})
			return
		}
	}
	out, err := g.codec.CreateHandshake(c.Request.Context(), req.Capabilities, req.ComputePower, req.Namespaces)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "encode_failed"})
		return
	}
	c.JSON(http.StatusOK, EnvelopeResponse{Envelope: base64.StdEncoding.EncodeToString(out), Bytes: len(out)})
}

func (g *Gateway) handleStatus(c *gin.Context) {
	sent, received := g.codec.Tracker().Peers()
	a := g.codec.Atlas()
	c.JSON(http.StatusOK, gin.H{
		"agent_id":         g.ID,
		"protocol_version": message.ProtocolVersion,
		"namespaces":       a.Namespaces(),
		"active":           a.Active(),
		"known_keys":       g.codec.KeyRing().Len(),
		"peers_sent":       sent,
		"peers_received":   received,
	})
}

func (g *Gateway) handleResolve(c *gin.Context) {
	name := c.Param("name")
	id, ok := g.codec.Atlas().Resolve(name)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "concept not found", Kind: "not_found"})
		return
	}
	primary, _ := g.codec.Atlas().Describe(id)
	c.JSON(http.StatusOK, concept(id, primary))
}

func (g *Gateway) handleDescribe(c *gin.Context) {
	id, err := atlas.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kindBadRequest})
		return
	}
	name, ok := g.codec.Atlas().Describe(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "concept not found", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, concept(id, name))
}

func concept(id atlas.ID, name string) ConceptResponse {
	return ConceptResponse{
		ID:       id.String(),
		Value:    uint32(id),
		Name:     name,
		Category: atlas.CategoryOf(id).String(),
	}
}
