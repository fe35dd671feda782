package signing

import (
	"crypto/ed25519"
	"sync"

	"github.com/rs/zerolog/log"
)

// KeyRing maps sender ids to Ed25519 public keys. Keys learned from
// handshakes are trusted on first use: once a sender is bound, a
// different key for it is refused until the binding is replaced with
// Pin.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]ed25519.PublicKey)}
}

// Trust binds sender to pub unless sender is already bound to another
// key. Rebinding the same key is a no-op.
func (k *KeyRing) Trust(sender string, pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if cur, ok := k.keys[sender]; ok {
		if cur.Equal(ed25519.PublicKey(pub)) {
			return nil
		}
		log.Warn().Str("component", "signing").Str("peer", sender).Msg("refusing key change for known sender")
		return ErrKeyMismatch
	}
	k.keys[sender] = append(ed25519.PublicKey(nil), pub...)
	log.Info().Str("component", "signing").Str("peer", sender).Msg("trusted new sender key")
	return nil
}

// Pin binds sender to pub, replacing any existing binding.
func (k *KeyRing) Pin(sender string, pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKey
	}
	k.mu.Lock()
	k.keys[sender] = append(ed25519.PublicKey(nil), pub...)
	k.mu.Unlock()
	return nil
}

func (k *KeyRing) Key(sender string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[sender]
	return pub, ok
}

func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

func (k *KeyRing) Verify(sender, algorithm string, msg, sig []byte) error {
	if algorithm != AlgEd25519 {
		return ErrUnsupportedAlgorithm
	}
	pub, ok := k.Key(sender)
	if !ok {
		return ErrUnknownKey
	}
	if !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}
