package message

import (
	"github.com/danmuck/ual/internal/graph"
)

const (
	ProtocolVersion = "0.2.0"
	// Broadcast addresses every listener; delta mode never applies to it.
	Broadcast = "broadcast"

	DefaultComputePower = 100
	DefaultEmbeddingTag = "external"
)

// DefaultCapabilities is advertised when CreateHandshake gets none.
var DefaultCapabilities = []string{"ual_v2", "image_processing"}

// Handshake negotiates capabilities and namespaces between agents.
type Handshake struct {
	AgentID      string   `cbor:"1,keyasint" json:"agent_id"`
	Capabilities []string `cbor:"2,keyasint" json:"capabilities"`
	Namespaces   []string `cbor:"3,keyasint" json:"namespaces"`
	PublicKey    []byte   `cbor:"4,keyasint,omitempty" json:"public_key,omitempty"`
	ComputePower int64    `cbor:"5,keyasint" json:"compute_power"`
}

// Decoded is the structured result of Decode.
type Decoded struct {
	Type            string `json:"type"`
	Sender          string `json:"sender"`
	Receiver        string `json:"receiver"`
	Timestamp       int64  `json:"timestamp"`
	MessageID       string `json:"message_id"`
	ProtocolVersion string `json:"protocol_version"`
	SemanticHash    string `json:"semantic_hash"`
	ParentHash      string `json:"parent_hash,omitempty"`
	IsDelta         bool   `json:"is_delta"`
	// Partial marks a delta rebuilt without the receiver's cached state
	// for the sender. Nodes then hold only what the sender changed and
	// edges to missing nodes are dropped.
	Partial     bool   `json:"partial,omitempty"`
	Compression string `json:"compression,omitempty"`

	// Verified is false whenever the signature or semantic hash did
	// not check out and strict verification was off.
	Verified  bool   `json:"verified"`
	Algorithm string `json:"algorithm"`

	Urgency float64         `json:"urgency"`
	Style   graph.Style     `json:"style"`
	Frame   *graph.EnvFrame `json:"env_frame,omitempty"`

	NaturalLanguage string       `json:"natural_language"`
	ContextID       string       `json:"context_id,omitempty"`
	Nodes           []graph.Node `json:"nodes,omitempty"`
	Edges           []graph.Edge `json:"edges,omitempty"`

	Handshake *Handshake `json:"handshake,omitempty"`
}
