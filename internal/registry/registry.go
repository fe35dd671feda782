// Package registry persists concept id assignments across restarts.
//
// Ids are split into three ranges: standard (built-in vocabulary),
// industry (namespace packs, registered per namespace) and private
// (derived locally from the concept name). Entries are stored in
// BadgerDB under concept/<id> keys with CBOR values and can be applied
// to an Atlas at startup.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/codec"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrOutOfRange = errors.New("registry: id out of range")
	ErrConflict   = errors.New("registry: id conflict")
	ErrEmptyName  = errors.New("registry: concept name is required")
	ErrFull       = errors.New("registry: private range exhausted")
)

// Range is an inclusive id interval.
type Range struct {
	Start atlas.ID
	End   atlas.ID
}

func (r Range) Contains(id atlas.ID) bool {
	return id >= r.Start && id <= r.End
}

var (
	StandardRange = Range{Start: 0x0000, End: 0x0FFF}
	IndustryRange = Range{Start: 0x1000, End: 0xEFFF}
	PrivateRange  = Range{Start: 0xF000, End: 0xFFFF}
)

// Kind records which range an entry was registered through.
type Kind uint8

const (
	KindStandard Kind = iota + 1
	KindIndustry
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindIndustry:
		return "industry"
	case KindPrivate:
		return "private"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Entry struct {
	ID        atlas.ID `cbor:"1,keyasint" json:"id"`
	Name      string   `cbor:"2,keyasint" json:"name"`
	Kind      Kind     `cbor:"3,keyasint" json:"kind"`
	Namespace string   `cbor:"4,keyasint,omitempty" json:"namespace,omitempty"`
}

const keyPrefix = "concept/"

func entryKey(id atlas.ID) []byte {
	return []byte(fmt.Sprintf("%s%08x", keyPrefix, uint32(id)))
}

// Config selects where the registry lives.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

type Registry struct {
	mu sync.Mutex
	db *badger.DB
}

// Open opens or creates a registry.
func Open(cfg Config) (*Registry, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("registry: path is required for a persistent registry")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: open badger: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// RegisterStandard binds name to id in the standard range.
func (r *Registry) RegisterStandard(name string, id atlas.ID) error {
	return r.register(Entry{ID: id, Name: name, Kind: KindStandard}, StandardRange)
}

// RegisterIndustry binds name to id in the industry range under a
// namespace.
func (r *Registry) RegisterIndustry(namespace, name string, id atlas.ID) error {
	namespace = strings.ToLower(strings.TrimSpace(namespace))
	if namespace == "" {
		return fmt.Errorf("registry: namespace is required for industry ids")
	}
	return r.register(Entry{ID: id, Name: name, Kind: KindIndustry, Namespace: namespace}, IndustryRange)
}

func (r *Registry) register(e Entry, rng Range) error {
	e.Name = strings.ToLower(strings.TrimSpace(e.Name))
	if e.Name == "" {
		return ErrEmptyName
	}
	if !rng.Contains(e.ID) {
		return fmt.Errorf("%w: %s not in %s..%s", ErrOutOfRange, e.ID, rng.Start, rng.End)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Update(func(txn *badger.Txn) error {
		cur, found, err := getEntry(txn, e.ID)
		if err != nil {
			return err
		}
		if found {
			if cur.Name != e.Name || cur.Namespace != e.Namespace {
				return fmt.Errorf("%w: %s is already %q", ErrConflict, e.ID, cur.Name)
			}
			return nil
		}
		return putEntry(txn, e)
	})
}

// PrivateID derives the private-range id for name without storing it.
func PrivateID(name string) atlas.ID {
	span := uint64(PrivateRange.End - PrivateRange.Start)
	return PrivateRange.Start + atlas.ID(xxhash.Sum64String(name)%span)
}

// DefinePrivate assigns name a deterministic id in the private range
// and stores it. A slot already taken by another name is skipped by
// probing forward.
func (r *Registry) DefinePrivate(name string) (atlas.ID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var assigned atlas.ID
	err := r.db.Update(func(txn *badger.Txn) error {
		span := uint32(PrivateRange.End-PrivateRange.Start) + 1
		start := PrivateID(name)
		for i := uint32(0); i < span; i++ {
			id := PrivateRange.Start + atlas.ID((uint32(start-PrivateRange.Start)+i)%span)
			cur, found, err := getEntry(txn, id)
			if err != nil {
				return err
			}
			if found && cur.Name != name {
				continue
			}
			assigned = id
			if found {
				return nil
			}
			return putEntry(txn, Entry{ID: id, Name: name, Kind: KindPrivate})
		}
		return ErrFull
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// Lookup returns the entry stored for id.
func (r *Registry) Lookup(id atlas.ID) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		e, found, err = getEntry(txn, id)
		return err
	})
	return e, found, err
}

// Entries returns every stored entry ordered by id.
func (r *Registry) Entries() ([]Entry, error) {
	var out []Entry
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return codec.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Apply loads every entry into a. Industry entries become namespace
// members; the rest are registered directly. Entries that conflict
// with the Atlas are skipped and logged. It returns how many entries
// were applied.
func (r *Registry) Apply(a *atlas.Atlas) (int, error) {
	entries, err := r.Entries()
	if err != nil {
		return 0, err
	}
	applied := 0
	grouped := make(map[string]map[atlas.ID][]string)
	for _, e := range entries {
		if e.Kind == KindIndustry {
			if grouped[e.Namespace] == nil {
				grouped[e.Namespace] = make(map[atlas.ID][]string)
			}
			grouped[e.Namespace][e.ID] = []string{e.Name}
			continue
		}
		if err := a.Register(e.ID, e.Name); err != nil {
			log.Warn().Err(err).Str("component", "registry").Str("concept", e.Name).Msg("entry skipped")
			continue
		}
		applied++
	}
	for ns, concepts := range grouped {
		if err := a.AddNamespace(atlas.Namespace{Name: ns, Concepts: concepts}); err != nil {
			return applied, err
		}
		applied += len(concepts)
	}
	return applied, nil
}

// SeedDefaults registers the core standard vocabulary when the
// registry is empty.
func (r *Registry) SeedDefaults() error {
	entries, err := r.Entries()
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	defaults := map[string]atlas.ID{
		"move":   atlas.Move,
		"scan":   atlas.Scan,
		"grab":   atlas.Grab,
		"drone":  atlas.Drone,
		"target": atlas.Target,
		"must":   atlas.Must,
		"if":     atlas.If,
	}
	for name, id := range defaults {
		if err := r.RegisterStandard(name, id); err != nil {
			return err
		}
	}
	return nil
}

func getEntry(txn *badger.Txn, id atlas.ID) (Entry, bool, error) {
	item, err := txn.Get(entryKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	err = item.Value(func(val []byte) error {
		return codec.Unmarshal(val, &e)
	})
	return e, err == nil, err
}

func putEntry(txn *badger.Txn, e Entry) error {
	data, err := codec.Marshal(e)
	if err != nil {
		return err
	}
	return txn.Set(entryKey(e.ID), data)
}
