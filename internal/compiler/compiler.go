// Package compiler turns natural-language intents into semantic graphs.
//
// Every implementation honors the same contract: text in, nodes, edges
// and intent metadata out. The rule-based compiler is total and never
// returns an error; model-backed compilers may fail and are wrapped
// with WithFallback so callers always get a graph.
package compiler

import (
	"context"

	"github.com/danmuck/ual/internal/graph"
	"github.com/danmuck/ual/internal/observability"
	"github.com/rs/zerolog/log"
)

// Compiler converts text into a graph fragment.
type Compiler interface {
	Compile(ctx context.Context, text string) (Result, error)
}

// Func adapts a function to the Compiler interface.
type Func func(ctx context.Context, text string) (Result, error)

func (f Func) Compile(ctx context.Context, text string) (Result, error) {
	return f(ctx, text)
}

// Metadata is the intent context extracted next to the graph.
type Metadata struct {
	Urgency float64         `json:"urgency"`
	Style   graph.Style     `json:"style"`
	Frame   *graph.EnvFrame `json:"frame,omitempty"`
}

// Result is the output of one compilation. Dropped lists the input
// words that resolved to no concept and produced no node.
type Result struct {
	Nodes    []graph.Node `json:"nodes"`
	Edges    []graph.Edge `json:"edges"`
	Metadata Metadata     `json:"metadata"`
	Dropped  []string     `json:"dropped,omitempty"`
}

// Graph assembles the result into a graph under contextID.
func (r Result) Graph(contextID string) graph.Graph {
	return graph.Graph{Nodes: r.Nodes, Edges: r.Edges, ContextID: contextID}
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	g := graph.Graph{Nodes: r.Nodes, Edges: r.Edges}.Clone()
	out := Result{
		Nodes:    g.Nodes,
		Edges:    g.Edges,
		Metadata: r.Metadata,
	}
	if r.Metadata.Frame != nil {
		frame := *r.Metadata.Frame
		out.Metadata.Frame = &frame
	}
	if r.Dropped != nil {
		out.Dropped = append([]string(nil), r.Dropped...)
	}
	return out
}

type fallbackCompiler struct {
	primary  Compiler
	fallback Compiler
}

// WithFallback returns a Compiler that uses fallback whenever primary
// fails or yields no nodes.
func WithFallback(primary, fallback Compiler) Compiler {
	return &fallbackCompiler{primary: primary, fallback: fallback}
}

func (f *fallbackCompiler) Compile(ctx context.Context, text string) (Result, error) {
	res, err := f.primary.Compile(ctx, text)
	if err == nil && len(res.Nodes) > 0 {
		return res, nil
	}
	reason := "empty"
	if err != nil {
		reason = "error"
		log.Warn().Err(err).Str("component", "compiler").Msg("primary compiler failed, using fallback")
	}
	observability.RecordCompilerFallback(reason)
	return f.fallback.Compile(ctx, text)
}
