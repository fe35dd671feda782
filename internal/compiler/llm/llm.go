// Package llm compiles intents with a chat-completion model behind an
// OpenAI-compatible endpoint. Model output is validated against the
// Atlas before it becomes a graph; anything the model invents that the
// Atlas cannot describe is re-resolved by name or degraded to an
// unresolved node.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/compiler"
	"github.com/danmuck/ual/internal/graph"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

var (
	ErrNoChoices   = errors.New("llm: model returned no choices")
	ErrBadResponse = errors.New("llm: model response is not a graph")
)

// Inputs shorter than this many words, without a conjunction, go
// straight to the rule compiler.
const shortInputWords = 5

type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Timeout:     20 * time.Second,
		Temperature: 0.1,
		MaxTokens:   512,
	}
}

type Compiler struct {
	client *openai.Client
	cfg    Config
	atlas  *atlas.Atlas
	rule   compiler.Compiler
}

// New builds a model compiler. rule serves short inputs.
func New(cfg Config, a *atlas.Atlas, rule compiler.Compiler) *Compiler {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Compiler{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		atlas:  a,
		rule:   rule,
	}
}

// NewWithFallback returns a model compiler that falls back to rule on
// any model failure.
func NewWithFallback(cfg Config, a *atlas.Atlas, rule compiler.Compiler) compiler.Compiler {
	return compiler.WithFallback(New(cfg, a, rule), rule)
}

func isShort(text string) bool {
	return len(strings.Fields(text)) < shortInputWords && !strings.Contains(strings.ToLower(text), " and ")
}

func (c *Compiler) Compile(ctx context.Context, text string) (compiler.Result, error) {
	if isShort(text) {
		return c.rule.Compile(ctx, text)
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(RelevantConcepts(c.atlas, text), text)},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return compiler.Result{}, fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return compiler.Result{}, ErrNoChoices
	}
	log.Debug().
		Str("component", "llm").
		Str("model", c.cfg.Model).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("completion received")

	return c.parseResponse(resp.Choices[0].Message.Content)
}

type frameJSON struct {
	FrameID     string     `json:"frame_id"`
	Origin      [3]float64 `json:"origin"`
	Orientation [4]float64 `json:"orientation"`
	Unit        string     `json:"unit"`
}

type headerJSON struct {
	Urgency  float64    `json:"urgency"`
	Style    int        `json:"style"`
	EnvFrame *frameJSON `json:"env_frame"`
}

type nodeJSON struct {
	ID         string          `json:"id"`
	SemanticID json.RawMessage `json:"semantic_id"`
	Type       int             `json:"type"`
	Value      any             `json:"value"`
}

type edgeJSON struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation int      `json:"relation"`
	Weight   *float64 `json:"weight"`
}

type responseJSON struct {
	Header   headerJSON `json:"header"`
	EnvFrame *frameJSON `json:"env_frame"`
	Nodes    []nodeJSON `json:"nodes"`
	Edges    []edgeJSON `json:"edges"`
}

func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// parseSemanticID accepts a JSON number or a decimal/0x-hex string.
// Anything unparseable is treated as unresolved.
func parseSemanticID(raw json.RawMessage) atlas.ID {
	if len(raw) == 0 {
		return 0
	}
	var n uint32
	if err := json.Unmarshal(raw, &n); err == nil {
		return atlas.ID(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	id, err := atlas.ParseID(s)
	if err != nil {
		return 0
	}
	return id
}

func (c *Compiler) parseResponse(content string) (compiler.Result, error) {
	body, ok := extractJSON(content)
	if !ok {
		return compiler.Result{}, ErrBadResponse
	}
	var data responseJSON
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return compiler.Result{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	res := compiler.Result{
		Metadata: compiler.Metadata{
			Urgency: clampUnit(data.Header.Urgency),
			Style:   graph.Neutral,
		},
	}
	if data.Header.Style >= int(graph.Neutral) && data.Header.Style <= int(graph.Command) {
		res.Metadata.Style = graph.Style(data.Header.Style)
	}
	frame := data.EnvFrame
	if frame == nil {
		frame = data.Header.EnvFrame
	}
	if frame != nil {
		res.Metadata.Frame = &graph.EnvFrame{
			FrameID:     frame.FrameID,
			Origin:      frame.Origin,
			Orientation: frame.Orientation,
			Unit:        frame.Unit,
		}
	}

	idMap := make(map[string]string, len(data.Nodes))
	for _, n := range data.Nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := idMap[n.ID]; dup {
			continue
		}
		node := graph.Node{ID: graph.NodeID(len(res.Nodes)), Type: graph.Unknown}
		if n.Type >= int(graph.Unknown) && n.Type <= int(graph.DataRef) {
			node.Type = graph.NodeType(n.Type)
		}
		value := valueText(n.Value)

		sid := parseSemanticID(n.SemanticID)
		if sid != 0 {
			if _, known := c.atlas.Describe(sid); !known {
				if resolved, found := c.atlas.Resolve(value); found {
					sid = resolved
				} else {
					log.Warn().Str("component", "llm").Str("concept", sid.String()).Msg("model invented concept id, mapping to unresolved")
					sid = 0
				}
			}
		}
		node.SemanticID = uint32(sid)
		if num, isNum := n.Value.(float64); isNum && (node.Type == graph.Value || sid == 0) {
			node.Literal = graph.NumberLiteral(num)
		} else if sid == 0 && value != "" {
			node.Literal = graph.StringLiteral(value)
		}
		idMap[n.ID] = node.ID
		res.Nodes = append(res.Nodes, node)
	}

	for _, e := range data.Edges {
		src, okSrc := idMap[e.Source]
		tgt, okTgt := idMap[e.Target]
		if !okSrc || !okTgt {
			continue
		}
		if e.Relation < int(graph.DependsOn) || e.Relation > int(graph.Temporal) {
			continue
		}
		edge := graph.NewEdge(src, tgt, graph.Relation(e.Relation))
		if e.Weight != nil {
			edge.Weight = clampUnit(*e.Weight)
		}
		res.Edges = append(res.Edges, edge)
	}
	return res, nil
}

func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
