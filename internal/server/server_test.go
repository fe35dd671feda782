package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/ual/internal/auth"
	"github.com/danmuck/ual/internal/message"
	"github.com/danmuck/ual/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, id string) *message.Codec {
	t.Helper()
	c, err := message.New(message.Options{AgentID: id})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func newGateway(t *testing.T, cfg Config) *Gateway {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	g := Appear(cfg, newCodec(t, "gw"))
	g.SetReady(true)
	return g
}

func do(t *testing.T, g *Gateway, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	g.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func envelopeOf(t *testing.T, rr *httptest.ResponseRecorder) []byte {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp EnvelopeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	raw, err := base64.StdEncoding.DecodeString(resp.Envelope)
	require.NoError(t, err)
	assert.Equal(t, len(raw), resp.Bytes)
	return raw
}

func TestProbes(t *testing.T) {
	g := newGateway(t, Config{})

	rr := do(t, g, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"service":"gw"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, do(t, g, http.MethodGet, "/ready", nil).Code)
	g.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, g, http.MethodGet, "/ready", nil).Code)

	assert.Equal(t, http.StatusOK, do(t, g, http.MethodGet, "/metrics", nil).Code)
}

func TestHandshakeThenEncodeVerifiesAtPeer(t *testing.T) {
	g := newGateway(t, Config{})
	alice := newCodec(t, "alice")
	ctx := context.Background()

	hs := envelopeOf(t, do(t, g, http.MethodPost, "/v1/handshake", HandshakeRequest{
		Capabilities: []string{"ual_v2"},
		ComputePower: 42,
		Namespaces:   []string{"warehouse_v1"},
	}))
	decodedHS, err := alice.Decode(ctx, hs)
	require.NoError(t, err)
	require.NotNil(t, decodedHS.Handshake)
	assert.Equal(t, "gw", decodedHS.Handshake.AgentID)
	assert.Equal(t, int64(42), decodedHS.Handshake.ComputePower)
	assert.True(t, decodedHS.Verified)

	env := envelopeOf(t, do(t, g, http.MethodPost, "/v1/encode", EncodeRequest{
		Text:       "move to kitchen",
		ReceiverID: "alice",
		ContextID:  "ctx-1",
	}))
	decoded, err := alice.Decode(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "gw", decoded.Sender)
	assert.Equal(t, "alice", decoded.Receiver)
	assert.True(t, decoded.Verified)
	assert.Contains(t, decoded.NaturalLanguage, "move")
}

func TestHandshakeWithoutBody(t *testing.T) {
	g := newGateway(t, Config{})
	raw := envelopeOf(t, do(t, g, http.MethodPost, "/v1/handshake", nil))

	decoded, err := newCodec(t, "bob").Decode(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.Handshake)
	assert.Equal(t, message.DefaultCapabilities, decoded.Handshake.Capabilities)
	assert.Equal(t, int64(message.DefaultComputePower), decoded.Handshake.ComputePower)
}

func TestDecodeEndpoint(t *testing.T) {
	g := newGateway(t, Config{})
	alice := newCodec(t, "alice")

	raw, err := alice.Encode(context.Background(), "scan area", "gw", "", nil, false)
	require.NoError(t, err)

	rr := do(t, g, http.MethodPost, "/v1/decode", DecodeRequest{Envelope: raw})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var decoded message.Decoded
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	assert.Equal(t, "alice", decoded.Sender)
	assert.Equal(t, "graph", decoded.Type)
	assert.False(t, decoded.Verified, "sender key unknown without a handshake")
	assert.NotEmpty(t, decoded.Nodes)
}

func TestDecodeErrors(t *testing.T) {
	g := newGateway(t, Config{})

	rr := do(t, g, http.MethodPost, "/v1/decode", DecodeRequest{Envelope: []byte("definitely not an envelope")})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(message.KindMalformed), body.Kind)

	rr = do(t, g, http.MethodPost, "/v1/decode", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, kindBadRequest, body.Kind)
}

func TestAtlasLookups(t *testing.T) {
	g := newGateway(t, Config{})

	rr := do(t, g, http.MethodGet, "/v1/atlas/resolve/move", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var c ConceptResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, uint32(0xA1), c.Value)
	assert.Equal(t, "move", c.Name)

	assert.Equal(t, http.StatusNotFound, do(t, g, http.MethodGet, "/v1/atlas/resolve/zzzz", nil).Code)

	rr = do(t, g, http.MethodGet, "/v1/atlas/describe/0xA1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, "move", c.Name)

	assert.Equal(t, http.StatusBadRequest, do(t, g, http.MethodGet, "/v1/atlas/describe/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, g, http.MethodGet, "/v1/atlas/describe/0xEEEE", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, g, http.MethodGet, "/v1/atlas/concepts", nil).Code)
}

func TestStatus(t *testing.T) {
	g := newGateway(t, Config{})
	_ = envelopeOf(t, do(t, g, http.MethodPost, "/v1/encode", EncodeRequest{Text: "move to base", ReceiverID: "bob", UseDelta: true}))

	rr := do(t, g, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "gw", body["agent_id"])
	assert.Equal(t, float64(1), body["peers_sent"])
}

func TestAuthGuardsV1Only(t *testing.T) {
	g := newGateway(t, Config{Auth: auth.StaticToken{Token: "secret"}})

	assert.Equal(t, http.StatusUnauthorized, do(t, g, http.MethodPost, "/v1/encode", EncodeRequest{Text: "stop"}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, g, http.MethodPost, "/v1/encode", EncodeRequest{Text: "stop"}, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK,
		do(t, g, http.MethodPost, "/v1/encode", EncodeRequest{Text: "stop"}, "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(t, g, http.MethodGet, "/health", nil).Code)
}
