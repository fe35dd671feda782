package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/ual/internal/message"
	"github.com/danmuck/ual/internal/testutil/testlog"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygenIsStable(t *testing.T) {
	testlog.Start(t)
	key := filepath.Join(t.TempDir(), "k")
	first, err := run(t, "", "keygen", "--key", key, "--agent", "edge-1")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.HasPrefix(first, "ssh-ed25519 ") || !strings.Contains(first, "edge-1") {
		t.Fatalf("unexpected authorized key line %q", first)
	}
	again, err := run(t, "", "keygen", "--key", key, "--agent", "edge-1")
	if err != nil {
		t.Fatalf("keygen again: %v", err)
	}
	if again != first {
		t.Fatalf("existing key was replaced without --force")
	}
	if _, err := run(t, "", "keygen"); err == nil {
		t.Fatalf("expected missing key path error")
	}
}

func TestEncodeThenDecodeWithSameKey(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	key := filepath.Join(dir, "k")
	frame := filepath.Join(dir, "frame.bin")

	if _, err := run(t, "", "encode", "--key", key, "--to", "bob", "-o", frame, "move", "to", "kitchen"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := run(t, "", "--json", "--key", key, "decode", frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var decoded message.Decoded
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if decoded.Sender != "ualctl" || decoded.Receiver != "bob" || !decoded.Verified {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
	if !strings.Contains(decoded.NaturalLanguage, "move") {
		t.Fatalf("summary = %q", decoded.NaturalLanguage)
	}
}

func TestDecodeBase64FromStdin(t *testing.T) {
	testlog.Start(t)
	encoded, err := run(t, "", "encode", "--agent", "alice", "scan", "area")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := run(t, encoded, "--agent", "bob", "decode")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out, "graph alice -> broadcast [UNVERIFIED") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := run(t, encoded, "--agent", "bob", "decode", "--strict"); err == nil {
		t.Fatalf("strict decode of an unknown sender should fail")
	}
	if _, err := run(t, "@@not base64@@", "decode"); err == nil {
		t.Fatalf("expected envelope read error")
	}
}

func TestInspectAndHandshake(t *testing.T) {
	testlog.Start(t)
	encoded, err := run(t, "", "handshake", "--ns", "warehouse_v1", "--power", "7")
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	out, err := run(t, encoded, "inspect")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "type:      handshake") || !strings.Contains(out, "algorithm: ed25519") {
		t.Fatalf("unexpected inspect output %q", out)
	}

	out, err = run(t, encoded, "--agent", "peer", "decode")
	if err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	if !strings.Contains(out, "namespaces:   warehouse_v1") || !strings.Contains(out, "compute:      7") {
		t.Fatalf("unexpected handshake output %q", out)
	}
}

func TestAtlasCommands(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "", "atlas", "resolve", "navigate")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(out, "0x0A1\tmove\t") {
		t.Fatalf("resolve output %q", out)
	}
	out, err = run(t, "", "atlas", "describe", "0xA2")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.Contains(out, "scan") {
		t.Fatalf("describe output %q", out)
	}
	if _, err := run(t, "", "atlas", "resolve", "qwertyuiop"); err == nil {
		t.Fatalf("expected not found")
	}
	out, err = run(t, "", "atlas", "list", "--category", "action")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "move") || strings.Contains(out, "kitchen") {
		t.Fatalf("list output %q", out)
	}
}

func TestRegistryCommands(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ualctl.toml")
	writeFile(t, cfgPath, "registry_path = \""+filepath.ToSlash(filepath.Join(dir, "reg"))+"\"\n")

	if _, err := run(t, "", "-c", cfgPath, "registry", "register", "conveyor", "0x150"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := run(t, "", "-c", cfgPath, "registry", "register", "--ns", "farm_v1", "tractor", "0x3001"); err != nil {
		t.Fatalf("register industry: %v", err)
	}
	if _, err := run(t, "", "-c", cfgPath, "registry", "register", "belt", "0x3002"); err == nil {
		t.Fatalf("standard registration in the industry range should fail")
	}
	priv, err := run(t, "", "-c", cfgPath, "registry", "private", "secret-widget")
	if err != nil {
		t.Fatalf("private: %v", err)
	}
	if strings.TrimSpace(priv) == "" {
		t.Fatalf("no private id printed")
	}
	out, err := run(t, "", "-c", cfgPath, "registry", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"conveyor", "tractor", "farm_v1", "secret-widget"} {
		if !strings.Contains(out, want) {
			t.Fatalf("registry list missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "", "registry", "list"); err == nil {
		t.Fatalf("expected missing registry_path error")
	}
}

func TestInitWritesTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ualctl.toml")
	if _, err := run(t, "", "init", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := run(t, "", "init", path); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := loadAgentConfig(path); err != nil {
		t.Fatalf("template does not load: %v", err)
	}
}
