package graph

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultWeight is the weight of a certain relation.
const DefaultWeight = 1.0

// MaxLiteral bounds numeric literals parsed from text.
const MaxLiteral = 1e12

var (
	ErrDuplicateNode = errors.New("graph: duplicate node id")
	ErrDanglingEdge  = errors.New("graph: edge references unknown node")
	ErrWeight        = errors.New("graph: edge weight out of range")
)

// NodeID is the deterministic id of the i-th node created in one
// compilation.
func NodeID(i int) string {
	return "n" + strconv.Itoa(i)
}

func NewEdge(source, target string, rel Relation) Edge {
	return Edge{Source: source, Target: target, Relation: rel, Weight: DefaultWeight}
}

func StringLiteral(s string) *Literal {
	return &Literal{Kind: LiteralString, Str: s}
}

// NumberLiteral clamps v into [-MaxLiteral, MaxLiteral]; NaN becomes 0.
func NumberLiteral(v float64) *Literal {
	return &Literal{Kind: LiteralNumber, Num: ClampNumber(v)}
}

func BoolLiteral(b bool) *Literal {
	return &Literal{Kind: LiteralBool, Bool: b}
}

func BytesLiteral(b []byte) *Literal {
	return &Literal{Kind: LiteralBytes, Bytes: append([]byte(nil), b...)}
}

// ClampNumber keeps v inside the literal sanity bound.
func ClampNumber(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > MaxLiteral:
		return MaxLiteral
	case v < -MaxLiteral:
		return -MaxLiteral
	default:
		return v
	}
}

// Text renders a literal the way summaries print it.
func (l *Literal) Text() string {
	if l == nil {
		return ""
	}
	switch l.Kind {
	case LiteralString:
		return l.Str
	case LiteralNumber:
		return strconv.FormatFloat(l.Num, 'f', -1, 64)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	case LiteralBytes:
		return fmt.Sprintf("<%d bytes>", len(l.Bytes))
	default:
		return ""
	}
}

func (n Node) HasEmbedding() bool {
	return n.Embedding != nil && len(n.Embedding.Values) > 0
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	if n.Literal != nil {
		lit := *n.Literal
		if n.Literal.Bytes != nil {
			lit.Bytes = append([]byte(nil), n.Literal.Bytes...)
		}
		out.Literal = &lit
	}
	if n.Embedding != nil {
		emb := Embedding{
			Values:   append([]float32(nil), n.Embedding.Values...),
			ModelTag: n.Embedding.ModelTag,
		}
		out.Embedding = &emb
	}
	return out
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		ContextID: g.ContextID,
		Rebase:    g.Rebase,
	}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if g.Edges != nil {
		out.Edges = append([]Edge(nil), g.Edges...)
	}
	if g.RemovedNodeIDs != nil {
		out.RemovedNodeIDs = append([]string(nil), g.RemovedNodeIDs...)
	}
	return out
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the edges whose source is id, in graph order.
func (g Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks node id uniqueness, edge endpoints, and weights.
func (g Graph) Validate() error {
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("%w: source %q", ErrDanglingEdge, e.Source)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("%w: target %q", ErrDanglingEdge, e.Target)
		}
		if e.Weight < 0 || e.Weight > 1 || math.IsNaN(e.Weight) {
			return fmt.Errorf("%w: %v", ErrWeight, e.Weight)
		}
	}
	return nil
}
