package signing

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/ual/internal/testutil/testlog"
)

func TestEd25519SignVerify(t *testing.T) {
	testlog.Start(t)
	s, err := GenerateEd25519()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ring := NewKeyRing()
	if err := ring.Trust("alice", s.PublicKey()); err != nil {
		t.Fatalf("trust: %v", err)
	}

	msg := []byte("fields")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ring.Verify("alice", AlgEd25519, msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := ring.Verify("alice", AlgEd25519, []byte("fieldz"), sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if err := ring.Verify("mallory", AlgEd25519, msg, sig); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if err := ring.Verify("alice", AlgInsecure, msg, sig); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestTrustOnFirstUse(t *testing.T) {
	testlog.Start(t)
	a, _ := GenerateEd25519()
	b, _ := GenerateEd25519()
	ring := NewKeyRing()

	if err := ring.Trust("alice", a.PublicKey()); err != nil {
		t.Fatalf("first trust: %v", err)
	}
	if err := ring.Trust("alice", a.PublicKey()); err != nil {
		t.Fatalf("same key again: %v", err)
	}
	if err := ring.Trust("alice", b.PublicKey()); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if err := ring.Pin("alice", b.PublicKey()); err != nil {
		t.Fatalf("pin: %v", err)
	}
	got, _ := ring.Key("alice")
	if !got.Equal(b.priv.Public()) {
		t.Fatalf("pin did not replace key")
	}
	if err := ring.Trust("bob", []byte{1, 2}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestInsecureAcceptsAnything(t *testing.T) {
	var s Signer = Insecure{}
	var v Verifier = Insecure{}
	sig, err := s.Sign([]byte("x"))
	if err != nil || sig != nil {
		t.Fatalf("insecure sign = %v, %v", sig, err)
	}
	if err := v.Verify("anyone", "whatever", nil, []byte("junk")); err != nil {
		t.Fatalf("insecure verify: %v", err)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "keys", "agent_ed25519")

	s, created, err := LoadOrCreate(path, "agent-1")
	if err != nil || !created {
		t.Fatalf("create = %v, %v", created, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("key mode = %v", info.Mode().Perm())
	}

	again, created, err := LoadOrCreate(path, "agent-1")
	if err != nil || created {
		t.Fatalf("reload = %v, %v", created, err)
	}
	if string(again.PublicKey()) != string(s.PublicKey()) {
		t.Fatalf("reloaded key differs")
	}
}

func TestLoadPrivateKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPrivateKey(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAuthorizedKeys(t *testing.T) {
	testlog.Start(t)
	a, _ := GenerateEd25519()
	b, _ := GenerateEd25519()
	lineA, err := AuthorizedKey(a.PublicKey(), "drone-7")
	if err != nil {
		t.Fatalf("authorized key: %v", err)
	}
	if !strings.HasPrefix(lineA, "ssh-ed25519 ") || !strings.HasSuffix(lineA, " drone-7") {
		t.Fatalf("line = %q", lineA)
	}
	lineB, _ := AuthorizedKey(b.PublicKey(), "")

	path := filepath.Join(t.TempDir(), "authorized_keys")
	content := "# peers\n" + lineA + "\n" + lineB + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ring := NewKeyRing()
	n, err := ring.LoadAuthorizedKeys(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 1 || ring.Len() != 1 {
		t.Fatalf("loaded %d keys, ring has %d", n, ring.Len())
	}
	pub, ok := ring.Key("drone-7")
	if !ok || string(pub) != string(a.PublicKey()) {
		t.Fatalf("drone-7 key missing or wrong")
	}
}
