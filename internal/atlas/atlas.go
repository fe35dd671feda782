// Package atlas maps concept identifiers to lower-cased concept names.
//
// An Atlas holds four tables: the base vocabulary, aliases onto base
// ids, a runtime-registered dynamic region, and optional namespaces
// that only take part in lookups while active. All tables are guarded
// by one RWMutex so handshake-driven activation and registration can
// run concurrently with compilation.
package atlas

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrConflict         = errors.New("atlas: concept id conflict")
	ErrInvalidConcept   = errors.New("atlas: invalid concept")
	ErrUnknownNamespace = errors.New("atlas: unknown namespace")
)

// biMap keeps id->name and name->id consistent on every write.
type biMap struct {
	byID   map[ID]string
	byName map[string]ID
}

func newBiMap() biMap {
	return biMap{byID: make(map[ID]string), byName: make(map[string]ID)}
}

func (m biMap) put(id ID, name string) {
	if old, ok := m.byID[id]; ok {
		delete(m.byName, old)
	}
	if oldID, ok := m.byName[name]; ok {
		delete(m.byID, oldID)
	}
	m.byID[id] = name
	m.byName[name] = id
}

// Namespace is an activatable vocabulary pack. The first name of each
// entry is primary; the rest are aliases.
type Namespace struct {
	Name     string
	Concepts map[ID][]string
}

// Concept is one row of an Atlas snapshot.
type Concept struct {
	ID        ID       `json:"id"`
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Category  string   `json:"category"`
	Namespace string   `json:"namespace,omitempty"`
	Dynamic   bool     `json:"dynamic,omitempty"`
}

type Atlas struct {
	mu         sync.RWMutex
	base       biMap
	aliases    map[string]ID
	dynamic    biMap
	namespaces map[string]*Namespace
	active     []string
	version    uint64
}

// NewEmpty returns an Atlas with no vocabulary.
func NewEmpty() *Atlas {
	return &Atlas{
		base:       newBiMap(),
		aliases:    make(map[string]ID),
		dynamic:    newBiMap(),
		namespaces: make(map[string]*Namespace),
	}
}

// New returns an Atlas holding the built-in vocabulary and the bundled
// namespace packs (inactive).
func New() *Atlas {
	a := NewEmpty()
	for id, name := range builtinConcepts {
		a.base.put(id, name)
	}
	for alias, id := range builtinAliases {
		a.aliases[alias] = id
	}
	if err := a.loadBundled(); err != nil {
		panic("atlas: bundled extension packs are invalid: " + err.Error())
	}
	return a
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve maps a concept name to its id. Lookup order is base table,
// aliases, dynamic region, then active namespaces; when nothing
// matches, singular forms of the word are tried through the same chain.
func (a *Atlas) Resolve(name string) (ID, bool) {
	name = normalize(name)
	if name == "" {
		return 0, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id, ok := a.lookupLocked(name); ok {
		return id, true
	}
	for _, candidate := range singulars(name) {
		if id, ok := a.lookupLocked(candidate); ok {
			return id, true
		}
	}
	return 0, false
}

func (a *Atlas) lookupLocked(name string) (ID, bool) {
	if id, ok := a.base.byName[name]; ok {
		return id, true
	}
	if id, ok := a.aliases[name]; ok {
		return id, true
	}
	if id, ok := a.dynamic.byName[name]; ok {
		return id, true
	}
	for _, nsName := range a.active {
		ns := a.namespaces[nsName]
		if ns == nil {
			continue
		}
		for id, names := range ns.Concepts {
			for _, n := range names {
				if n == name {
					return id, true
				}
			}
		}
	}
	return 0, false
}

// singulars returns the plural-folding candidates for word.
func singulars(word string) []string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return []string{word[:len(word)-3] + "y"}
	case strings.HasSuffix(word, "es") && len(word) > 2:
		return []string{word[:len(word)-2], word[:len(word)-1]}
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 1:
		return []string{word[:len(word)-1]}
	default:
		return nil
	}
}

// Describe maps an id to its primary name. Lookup order is base table,
// dynamic region, then active namespaces in activation order.
func (a *Atlas) Describe(id ID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.describeLocked(id)
}

func (a *Atlas) describeLocked(id ID) (string, bool) {
	if name, ok := a.base.byID[id]; ok {
		return name, true
	}
	if name, ok := a.dynamic.byID[id]; ok {
		return name, true
	}
	for _, nsName := range a.active {
		ns := a.namespaces[nsName]
		if ns == nil {
			continue
		}
		if names, ok := ns.Concepts[id]; ok && len(names) > 0 {
			return names[0], true
		}
	}
	return "", false
}

// AddNamespace makes a namespace available for activation. Entries are
// merged into an existing namespace of the same name.
func (a *Atlas) AddNamespace(ns Namespace) error {
	name := normalize(ns.Name)
	if name == "" {
		return fmt.Errorf("%w: namespace name is required", ErrInvalidConcept)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.namespaces[name]
	if !ok {
		cur = &Namespace{Name: name, Concepts: make(map[ID][]string)}
		a.namespaces[name] = cur
	}
	for id, names := range ns.Concepts {
		clean := cleanNames(names)
		if id == 0 || len(clean) == 0 {
			continue
		}
		cur.Concepts[id] = clean
	}
	a.version++
	return nil
}

// Activate adds a known namespace to the lookup chain.
func (a *Atlas) Activate(name string) error {
	name = normalize(name)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.namespaces[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
	}
	for _, cur := range a.active {
		if cur == name {
			return nil
		}
	}
	a.active = append(a.active, name)
	a.version++
	return nil
}

// Deactivate removes a namespace from the lookup chain. Unknown or
// inactive names are ignored.
func (a *Atlas) Deactivate(name string) {
	name = normalize(name)
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, cur := range a.active {
		if cur == name {
			a.active = append(a.active[:i], a.active[i+1:]...)
			a.version++
			return
		}
	}
}

// Namespaces lists the available namespaces, sorted.
func (a *Atlas) Namespaces() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.namespaces))
	for name := range a.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Active lists the active namespaces in activation order.
func (a *Atlas) Active() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.active...)
}

// Register binds name to id in the dynamic region. It fails with
// ErrConflict when the name already resolves to another id or the id
// already describes another name. Re-registering an identical pair is
// a no-op.
func (a *Atlas) Register(id ID, name string) error {
	name = normalize(name)
	if id == 0 || name == "" {
		return fmt.Errorf("%w: id %s name %q", ErrInvalidConcept, id, name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.lookupLocked(name); ok && cur != id {
		return fmt.Errorf("%w: %q already bound to %s", ErrConflict, name, cur)
	}
	if cur, ok := a.describeLocked(id); ok {
		if cur != name {
			return fmt.Errorf("%w: %s already bound to %q", ErrConflict, id, cur)
		}
		return nil
	}
	a.dynamic.put(id, name)
	a.version++
	return nil
}

// RegisterDynamic binds name to id in the dynamic region, overwriting
// any earlier dynamic binding of either the id or the name.
func (a *Atlas) RegisterDynamic(id ID, name string) {
	name = normalize(name)
	if id == 0 || name == "" {
		return
	}
	a.mu.Lock()
	a.dynamic.put(id, name)
	a.version++
	a.mu.Unlock()
}

// Version increases on every change to the lookup tables. Callers that
// cache resolution results compare it to detect stale entries.
func (a *Atlas) Version() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

// Concepts returns a snapshot of every visible concept sorted by id:
// base and dynamic entries plus those of active namespaces.
func (a *Atlas) Concepts() []Concept {
	a.mu.RLock()
	defer a.mu.RUnlock()

	aliasesByID := make(map[ID][]string)
	for alias, id := range a.aliases {
		aliasesByID[id] = append(aliasesByID[id], alias)
	}

	out := make([]Concept, 0, len(a.base.byID)+len(a.dynamic.byID))
	for id, name := range a.base.byID {
		aliases := aliasesByID[id]
		sort.Strings(aliases)
		out = append(out, Concept{ID: id, Name: name, Aliases: aliases, Category: CategoryOf(id).String()})
	}
	for id, name := range a.dynamic.byID {
		if _, shadowed := a.base.byID[id]; shadowed {
			continue
		}
		out = append(out, Concept{ID: id, Name: name, Category: CategoryOf(id).String(), Dynamic: true})
	}
	for _, nsName := range a.active {
		ns := a.namespaces[nsName]
		if ns == nil {
			continue
		}
		for id, names := range ns.Concepts {
			c := Concept{ID: id, Name: names[0], Category: CategoryOf(id).String(), Namespace: ns.Name}
			if len(names) > 1 {
				c.Aliases = append([]string(nil), names[1:]...)
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
