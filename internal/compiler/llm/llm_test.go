package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/compiler"
	"github.com/danmuck/ual/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel serves chat completions with a fixed assistant message.
func fakeModel(t *testing.T, content string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}
		body := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestCompiler(srv *httptest.Server, a *atlas.Atlas) *Compiler {
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v1"
	cfg.APIKey = "test"
	cfg.Model = "test-model"
	return New(cfg, a, compiler.NewRule(a))
}

func TestModelGraphIsValidatedAgainstAtlas(t *testing.T) {
	content := "Sure! " + `{"header":{"urgency":0.7,"style":2},"env_frame":{"origin":[10,20,5],"unit":"meter"},` +
		`"nodes":[` +
		`{"id":"a","semantic_id":"0xA2","type":2,"value":"scan"},` +
		`{"id":"b","semantic_id":"0x7777","type":1,"value":"kitchen"},` +
		`{"id":"c","semantic_id":"0x7778","type":1,"value":"gizmo"},` +
		`{"id":"d","semantic_id":0,"type":6,"value":3}],` +
		`"edges":[` +
		`{"source":"a","target":"b","relation":3},` +
		`{"source":"a","target":"zzz","relation":3},` +
		`{"source":"b","target":"d","relation":2,"weight":0.4},` +
		`{"source":"a","target":"c","relation":42}]}`
	srv, calls := fakeModel(t, content, http.StatusOK)
	a := atlas.New()
	c := newTestCompiler(srv, a)

	res, err := c.Compile(context.Background(), "scan the kitchen for the gizmo and report")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	require.Len(t, res.Nodes, 4)
	assert.Equal(t, uint32(atlas.Scan), res.Nodes[0].SemanticID)
	assert.Equal(t, uint32(atlas.Kitchen), res.Nodes[1].SemanticID, "invented id re-resolved by value")
	assert.Equal(t, uint32(0), res.Nodes[2].SemanticID, "unresolvable invented id degrades to 0")
	require.NotNil(t, res.Nodes[2].Literal)
	assert.Equal(t, "gizmo", res.Nodes[2].Literal.Str)
	require.NotNil(t, res.Nodes[3].Literal)
	assert.Equal(t, 3.0, res.Nodes[3].Literal.Num)

	require.Len(t, res.Edges, 2)
	assert.Equal(t, graph.NewEdge("n0", "n1", graph.Argument), res.Edges[0])
	assert.Equal(t, 0.4, res.Edges[1].Weight)

	assert.Equal(t, 0.7, res.Metadata.Urgency)
	assert.Equal(t, graph.Command, res.Metadata.Style)
	require.NotNil(t, res.Metadata.Frame)
	assert.Equal(t, [3]float64{10, 20, 5}, res.Metadata.Frame.Origin)
	require.NoError(t, res.Graph("ctx").Validate())
}

func TestShortInputSkipsModel(t *testing.T) {
	srv, calls := fakeModel(t, "{}", http.StatusOK)
	c := newTestCompiler(srv, atlas.New())

	res, err := c.Compile(context.Background(), "move to kitchen")
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, res.Nodes, 2)
}

func TestModelFailureFallsBackToRules(t *testing.T) {
	srv, calls := fakeModel(t, "", http.StatusInternalServerError)
	a := atlas.New()
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v1"
	cfg.APIKey = "test"
	c := NewWithFallback(cfg, a, compiler.NewRule(a))

	text := "scan area and then return to base now"
	res, err := c.Compile(context.Background(), text)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	want, err := compiler.NewRule(a).Compile(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, want.Nodes, res.Nodes)
	assert.Equal(t, want.Edges, res.Edges)
}

func TestGarbageResponseIsAnError(t *testing.T) {
	srv, _ := fakeModel(t, "I cannot help with that.", http.StatusOK)
	c := newTestCompiler(srv, atlas.New())

	_, err := c.Compile(context.Background(), "scan the kitchen for the gizmo and report")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestRelevantConcepts(t *testing.T) {
	subset := RelevantConcepts(atlas.New(), "Return the drones home")
	assert.Contains(t, subset, "- if: 0xC1")
	assert.Contains(t, subset, "- must: 0xD1")
	assert.Contains(t, subset, "- drone: 0xE1")
	assert.Contains(t, subset, "- move: 0xA1", "alias mention pulls in the primary concept")
	assert.Contains(t, subset, "- base: 0xE4")
	assert.NotContains(t, subset, "kitchen")
}
