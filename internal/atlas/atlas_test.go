package atlas

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/ual/internal/testutil/testlog"
)

func TestResolveBaseAliasAndCase(t *testing.T) {
	testlog.Start(t)
	a := New()

	cases := map[string]ID{
		"move":     Move,
		"Move":     Move,
		"RETURN":   Move,
		"navigate": Move,
		"home":     Base,
		"kitchen":  Kitchen,
		"not":      Not,
		"minute":   Minute,
	}
	for name, want := range cases {
		got, ok := a.Resolve(name)
		if !ok || got != want {
			t.Fatalf("Resolve(%q) = %v,%v want %v", name, got, ok, want)
		}
	}
	if _, ok := a.Resolve("teleport"); ok {
		t.Fatalf("expected unknown word to stay unresolved")
	}
	if _, ok := a.Resolve("   "); ok {
		t.Fatalf("blank input must not resolve")
	}
}

func TestResolvePlurals(t *testing.T) {
	a := New()
	cases := map[string]ID{
		"obstacles": Obstacle,
		"packages":  Package,
		"drones":    Drone,
		"bases":     Base,
		"shelfs":    Shelf,
		"items":     Package,
	}
	for name, want := range cases {
		got, ok := a.Resolve(name)
		if !ok || got != want {
			t.Fatalf("Resolve(%q) = %v,%v want %v", name, got, ok, want)
		}
	}

	a.RegisterDynamic(0xF001, "battery_cell")
	a.RegisterDynamic(0xF002, "party")
	if got, ok := a.Resolve("parties"); !ok || got != 0xF002 {
		t.Fatalf("ies folding failed: %v,%v", got, ok)
	}
	if _, ok := a.Resolve("glass"); ok {
		t.Fatalf("ss words must not be folded to a match")
	}
}

func TestDescribe(t *testing.T) {
	a := New()
	if name, ok := a.Describe(Scan); !ok || name != "scan" {
		t.Fatalf("Describe(scan) = %q,%v", name, ok)
	}
	if _, ok := a.Describe(0x1001); ok {
		t.Fatalf("inactive namespace must not describe")
	}
	if err := a.Activate("warehouse_v1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if name, ok := a.Describe(0x1001); !ok || name != "pallet" {
		t.Fatalf("Describe(pallet) = %q,%v", name, ok)
	}
}

func TestNamespaceActivation(t *testing.T) {
	a := New()
	if _, ok := a.Resolve("scalpel"); ok {
		t.Fatalf("scalpel resolvable before activation")
	}
	if err := a.Activate("medical_v1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got, ok := a.Resolve("scalpels"); !ok || got != 0x2001 {
		t.Fatalf("Resolve(scalpels) = %v,%v", got, ok)
	}
	if err := a.Activate("medical_v1"); err != nil {
		t.Fatalf("double activate must be idempotent: %v", err)
	}
	if len(a.Active()) != 1 {
		t.Fatalf("unexpected active list: %v", a.Active())
	}
	a.Deactivate("medical_v1")
	if _, ok := a.Resolve("scalpel"); ok {
		t.Fatalf("scalpel resolvable after deactivation")
	}
	if err := a.Activate("astro_v9"); !errors.Is(err, ErrUnknownNamespace) {
		t.Fatalf("expected ErrUnknownNamespace, got %v", err)
	}
}

func TestRegisterConflicts(t *testing.T) {
	a := New()
	if err := a.Register(0xF010, "lidar"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.Register(0xF010, "lidar"); err != nil {
		t.Fatalf("identical re-register must succeed: %v", err)
	}
	if err := a.Register(0xF011, "lidar"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected name conflict, got %v", err)
	}
	if err := a.Register(0xF010, "radar"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected id conflict, got %v", err)
	}
	if err := a.Register(0xF012, "move"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict with base vocabulary, got %v", err)
	}
	if err := a.Register(0, "zero"); !errors.Is(err, ErrInvalidConcept) {
		t.Fatalf("expected ErrInvalidConcept, got %v", err)
	}
	if got, ok := a.Resolve("lidar"); !ok || got != 0xF010 {
		t.Fatalf("Resolve(lidar) = %v,%v", got, ok)
	}
}

func TestRegisterDynamicLastWriterWins(t *testing.T) {
	a := New()
	a.RegisterDynamic(0xF020, "sonar")
	a.RegisterDynamic(0xF020, "echo")

	if name, ok := a.Describe(0xF020); !ok || name != "echo" {
		t.Fatalf("Describe = %q,%v", name, ok)
	}
	if _, ok := a.Resolve("sonar"); ok {
		t.Fatalf("overwritten name must not resolve to a stale id")
	}
	if got, ok := a.Resolve("echo"); !ok || got != 0xF020 {
		t.Fatalf("Resolve(echo) = %v,%v", got, ok)
	}
}

func TestConceptsSnapshotSorted(t *testing.T) {
	a := New()
	a.RegisterDynamic(0xF030, "beacon")
	concepts := a.Concepts()
	if len(concepts) == 0 {
		t.Fatalf("empty snapshot")
	}
	for i := 1; i < len(concepts); i++ {
		if concepts[i-1].ID > concepts[i].ID {
			t.Fatalf("snapshot not sorted at %d", i)
		}
	}
	var sawMove, sawBeacon bool
	for _, c := range concepts {
		if c.ID == Move {
			sawMove = true
			if c.Category != "action" || len(c.Aliases) != 3 {
				t.Fatalf("unexpected move row: %+v", c)
			}
		}
		if c.ID == 0xF030 {
			sawBeacon = c.Dynamic && c.Category == "private"
		}
	}
	if !sawMove || !sawBeacon {
		t.Fatalf("snapshot missing rows: move=%v beacon=%v", sawMove, sawBeacon)
	}
}

func TestCategoryOf(t *testing.T) {
	cases := map[ID]Category{
		0:      CategoryUnknown,
		0x010:  CategoryPrimitive,
		Move:   CategoryAction,
		Speed:  CategoryProperty,
		If:     CategoryLogic,
		Must:   CategoryModal,
		Drone:  CategoryEntity,
		Belief: CategoryMeta,
		Hour:   CategoryTemporal,
		0x200:  CategoryStandard,
		0x1001: CategoryIndustry,
		0xF001: CategoryPrivate,
	}
	for id, want := range cases {
		if got := CategoryOf(id); got != want {
			t.Fatalf("CategoryOf(%s) = %s want %s", id, got, want)
		}
	}
}

func TestParseExtension(t *testing.T) {
	doc := []byte(`
concepts:
  0x0E8: [Charger, dock]
  "0x0E9": [ramp]
  234: crate
`)
	ext, err := ParseExtension(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ext.Namespace != "" {
		t.Fatalf("unexpected namespace %q", ext.Namespace)
	}
	if names := ext.Concepts[0x0E8]; len(names) != 2 || names[0] != "charger" || names[1] != "dock" {
		t.Fatalf("unexpected 0x0E8 names: %v", names)
	}
	if names := ext.Concepts[0x0E9]; len(names) != 1 || names[0] != "ramp" {
		t.Fatalf("unexpected 0x0E9 names: %v", names)
	}
	if names := ext.Concepts[234]; len(names) != 1 || names[0] != "crate" {
		t.Fatalf("unexpected decimal key names: %v", names)
	}

	a := New()
	if err := a.Apply(ext); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, ok := a.Resolve("dock"); !ok || got != 0x0E8 {
		t.Fatalf("alias from extension not resolvable: %v,%v", got, ok)
	}

	if _, err := ParseExtension([]byte("concepts:\n  zz: [bad]\n")); !errors.Is(err, ErrInvalidExtension) {
		t.Fatalf("expected ErrInvalidExtension for bad key, got %v", err)
	}
	if _, err := ParseExtension([]byte("concepts: [a, b]\n")); !errors.Is(err, ErrInvalidExtension) {
		t.Fatalf("expected ErrInvalidExtension for list concepts, got %v", err)
	}
}

func TestLoadDirAddsNamespaces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "namespace: farm_v1\nconcepts:\n  0x3001: [tractor]\n")
	writeFile(t, filepath.Join(dir, "b.yml"), "concepts:\n  0x0E9: [ramp]\n")
	writeFile(t, filepath.Join(dir, "c.yaml"), "concepts: [broken\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	a := New()
	loaded, err := a.LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if loaded != 2 {
		t.Fatalf("expected 2 loaded files, got %d", loaded)
	}
	if _, ok := a.Resolve("ramp"); !ok {
		t.Fatalf("base extension not applied")
	}
	if err := a.Activate("farm_v1"); err != nil {
		t.Fatalf("activate farm_v1: %v", err)
	}
	if got, ok := a.Resolve("tractors"); !ok || got != 0x3001 {
		t.Fatalf("Resolve(tractors) = %v,%v", got, ok)
	}

	if n, err := a.LoadDir(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}

func TestWatchReloadsWrittenFiles(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	a := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, dir, nil)
	}()

	path := filepath.Join(dir, "live.yaml")
	deadline := time.Now().Add(5 * time.Second)
	for {
		writeFile(t, path, "concepts:\n  0x0EA: [gantry]\n")
		if _, ok := a.Resolve("gantry"); ok {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("watched file never loaded")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop on cancel")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
