package graph

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/danmuck/ual/internal/codec"
	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of one node's canonical bytes.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// nodeDomainKey separates node content hashes from any other keyed
// BLAKE3 use. Changing it invalidates every cached peer baseline.
var nodeDomainKey = [32]byte{
	'u', 'a', 'l', '.', 'g', 'r', 'a', 'p', 'h', '.', 'n', 'o', 'd', 'e',
}

// semanticHashLen is the number of hex characters kept from SHA-256.
const semanticHashLen = 16

// NodeHash returns the keyed BLAKE3 hash of the node's canonical CBOR
// encoding. Two nodes hash equal iff every field (id, type, concept,
// literal, embedding) is equal.
func NodeHash(n Node) (Hash, error) {
	data, err := codec.Marshal(n)
	if err != nil {
		return Hash{}, err
	}
	hasher, err := blake3.NewKeyed(nodeDomainKey[:])
	if err != nil {
		panic("graph: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// Canonical returns the deterministic CBOR encoding of g.
func Canonical(g Graph) ([]byte, error) {
	return codec.Marshal(g)
}

// SemanticHash is the hex SHA-256 of payload truncated to 16 characters.
func SemanticHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:semanticHashLen]
}

// GraphHash is SemanticHash over the canonical encoding of g.
func GraphHash(g Graph) (string, error) {
	data, err := Canonical(g)
	if err != nil {
		return "", err
	}
	return SemanticHash(data), nil
}
