// Package signing provides the envelope signature capability.
//
// Ed25519 is the default. Insecure signs nothing and accepts everything;
// it exists for tests and local tooling and must never be configured on
// a network-facing agent.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	AlgEd25519  = "ed25519"
	AlgInsecure = "insecure-none"
)

var (
	ErrUnknownKey           = errors.New("signing: no key for sender")
	ErrBadSignature         = errors.New("signing: signature does not verify")
	ErrKeyMismatch          = errors.New("signing: sender already bound to a different key")
	ErrUnsupportedAlgorithm = errors.New("signing: unsupported algorithm")
	ErrInvalidKey           = errors.New("signing: invalid key")
)

type Signer interface {
	Algorithm() string
	// PublicKey is advertised in handshakes; nil when the signer has none.
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}

type Verifier interface {
	Verify(sender, algorithm string, msg, sig []byte) error
}

type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

func NewEd25519(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key is %d bytes", ErrInvalidKey, len(priv))
	}
	return &Ed25519Signer{priv: priv}, nil
}

func GenerateEd25519() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{priv: priv}, nil
}

func (s *Ed25519Signer) Algorithm() string { return AlgEd25519 }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.priv.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

func (s *Ed25519Signer) PrivateKey() ed25519.PrivateKey {
	return s.priv
}

// Insecure is the labeled no-op signer and verifier.
type Insecure struct{}

func (Insecure) Algorithm() string                           { return AlgInsecure }
func (Insecure) PublicKey() []byte                           { return nil }
func (Insecure) Sign([]byte) ([]byte, error)                 { return nil, nil }
func (Insecure) Verify(string, string, []byte, []byte) error { return nil }

// VerifyKey checks sig against an explicit Ed25519 public key.
func VerifyKey(pub, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKey
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrBadSignature
	}
	return nil
}
