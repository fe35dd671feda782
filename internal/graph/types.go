// Package graph owns the semantic graph value types exchanged between
// agents: typed concept nodes, weighted relation edges, and the intent
// metadata (urgency, style, environment frame) carried next to them.
package graph

import "fmt"

// NodeType classifies a node. Values are wire constants.
type NodeType uint8

const (
	Unknown NodeType = iota
	Entity
	Action
	Property
	Logic
	Modal
	Value
	DataRef
)

func (t NodeType) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Entity:
		return "entity"
	case Action:
		return "action"
	case Property:
		return "property"
	case Logic:
		return "logic"
	case Modal:
		return "modal"
	case Value:
		return "value"
	case DataRef:
		return "data_ref"
	default:
		return fmt.Sprintf("node_type(%d)", uint8(t))
	}
}

// Relation labels an edge. Values are wire constants.
type Relation uint8

const (
	DependsOn Relation = iota
	Next
	Attribute
	Argument
	Condition
	Consequence
	Alternative
	Temporal
)

func (r Relation) String() string {
	switch r {
	case DependsOn:
		return "depends_on"
	case Next:
		return "next"
	case Attribute:
		return "attribute"
	case Argument:
		return "argument"
	case Condition:
		return "condition"
	case Consequence:
		return "consequence"
	case Alternative:
		return "alternative"
	case Temporal:
		return "temporal"
	default:
		return fmt.Sprintf("relation(%d)", uint8(r))
	}
}

// Style is the speech-act style of an intent.
type Style uint8

const (
	Neutral Style = iota
	Request
	Command
)

func (s Style) String() string {
	switch s {
	case Neutral:
		return "neutral"
	case Request:
		return "request"
	case Command:
		return "command"
	default:
		return fmt.Sprintf("style(%d)", uint8(s))
	}
}

// LiteralKind tags the populated member of a Literal.
type LiteralKind uint8

const (
	LiteralString LiteralKind = iota + 1
	LiteralNumber
	LiteralBool
	LiteralBytes
)

// Literal is a one-of raw value attached to a node.
type Literal struct {
	Kind  LiteralKind `cbor:"1,keyasint" json:"kind"`
	Str   string      `cbor:"2,keyasint,omitempty" json:"str,omitempty"`
	Num   float64     `cbor:"3,keyasint,omitempty" json:"num,omitempty"`
	Bool  bool        `cbor:"4,keyasint,omitempty" json:"bool,omitempty"`
	Bytes []byte      `cbor:"5,keyasint,omitempty" json:"bytes,omitempty"`
}

// Embedding is an optional dense vector attached to a node.
type Embedding struct {
	Values   []float32 `cbor:"1,keyasint" json:"values"`
	ModelTag string    `cbor:"2,keyasint,omitempty" json:"model_tag,omitempty"`
}

// Node is a graph-local concept occurrence. SemanticID 0 means the
// node is unresolved or raw.
type Node struct {
	ID         string     `cbor:"1,keyasint" json:"id"`
	Type       NodeType   `cbor:"2,keyasint" json:"type"`
	SemanticID uint32     `cbor:"3,keyasint,omitempty" json:"semantic_id,omitempty"`
	Literal    *Literal   `cbor:"4,keyasint,omitempty" json:"literal,omitempty"`
	Embedding  *Embedding `cbor:"5,keyasint,omitempty" json:"embedding,omitempty"`
}

// Edge is a directed, labeled relation. Weight below 1 marks an
// uncertain relation.
type Edge struct {
	Source   string   `cbor:"1,keyasint" json:"source"`
	Target   string   `cbor:"2,keyasint" json:"target"`
	Relation Relation `cbor:"3,keyasint" json:"relation"`
	Weight   float64  `cbor:"4,keyasint" json:"weight"`
}

// Graph is a labeled multigraph. It is not guaranteed to be acyclic.
//
// RemovedNodeIDs and Rebase are only populated on delta frames.
type Graph struct {
	Nodes          []Node   `cbor:"1,keyasint" json:"nodes"`
	Edges          []Edge   `cbor:"2,keyasint" json:"edges"`
	ContextID      string   `cbor:"3,keyasint,omitempty" json:"context_id,omitempty"`
	RemovedNodeIDs []string `cbor:"4,keyasint,omitempty" json:"removed_node_ids,omitempty"`
	Rebase         bool     `cbor:"5,keyasint,omitempty" json:"rebase,omitempty"`
}

// EnvFrame is the optional spatial/temporal context of a message.
type EnvFrame struct {
	FrameID     string     `cbor:"1,keyasint" json:"frame_id"`
	Origin      [3]float64 `cbor:"2,keyasint" json:"origin"`
	Orientation [4]float64 `cbor:"3,keyasint" json:"orientation"`
	Unit        string     `cbor:"4,keyasint,omitempty" json:"unit,omitempty"`
	Timestamp   int64      `cbor:"5,keyasint,omitempty" json:"timestamp,omitempty"`
}
