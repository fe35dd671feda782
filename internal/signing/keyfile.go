package signing

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// LoadPrivateKey reads an OpenSSH Ed25519 private key.
func LoadPrivateKey(path string) (*Ed25519Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := ssh.ParseRawPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("signing: parse %s: %w", path, err)
	}
	switch k := key.(type) {
	case *ed25519.PrivateKey:
		return NewEd25519(*k)
	case ed25519.PrivateKey:
		return NewEd25519(k)
	default:
		return nil, fmt.Errorf("%w: %s holds %T, want ed25519", ErrInvalidKey, path, key)
	}
}

// SavePrivateKey writes priv in OpenSSH format with mode 0600.
func SavePrivateKey(path string, priv ed25519.PrivateKey, comment string) error {
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// LoadOrCreate loads the key at path, generating and saving a new one
// when the file does not exist.
func LoadOrCreate(path, comment string) (*Ed25519Signer, bool, error) {
	s, err := LoadPrivateKey(path)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	s, err = GenerateEd25519()
	if err != nil {
		return nil, false, err
	}
	if err := SavePrivateKey(path, s.priv, comment); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// AuthorizedKey renders pub as an authorized_keys line with comment.
func AuthorizedKey(pub []byte, comment string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidKey
	}
	sshPub, err := ssh.NewPublicKey(ed25519.PublicKey(pub))
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line, nil
}

// ParseAuthorizedKey returns the Ed25519 key and comment of one
// authorized_keys line.
func ParseAuthorizedKey(line []byte) (ed25519.PublicKey, string, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, "", err
	}
	cpk, ok := pub.(ssh.CryptoPublicKey)
	if !ok {
		return nil, "", ErrInvalidKey
	}
	edPub, ok := cpk.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s key, want ed25519", ErrInvalidKey, pub.Type())
	}
	return edPub, comment, nil
}

// LoadAuthorizedKeys pins every Ed25519 key in an authorized_keys file,
// using each line's comment as the sender id. Lines without a comment
// or with other key types are skipped.
func (k *KeyRing) LoadAuthorizedKeys(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		pub, sender, err := ParseAuthorizedKey(line)
		if err != nil || sender == "" {
			continue
		}
		if err := k.Pin(sender, pub); err != nil {
			return n, err
		}
		n++
	}
	return n, sc.Err()
}
