package atlas

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var bundledPacks embed.FS

var ErrInvalidExtension = errors.New("atlas: invalid extension document")

// Extension is a parsed vocabulary document. Without a Namespace its
// concepts extend the base table; with one they form an activatable
// namespace.
type Extension struct {
	Namespace string
	Concepts  map[ID][]string
}

type extensionDoc struct {
	Namespace string    `yaml:"namespace"`
	Concepts  yaml.Node `yaml:"concepts"`
}

// ParseExtension decodes a YAML extension document. Concept keys may
// be decimal or 0x-prefixed hex, written as text or as integers. Values
// are a list of names (first is primary) or a single name.
func ParseExtension(data []byte) (Extension, error) {
	var doc extensionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Extension{}, fmt.Errorf("%w: %v", ErrInvalidExtension, err)
	}
	ext := Extension{
		Namespace: normalize(doc.Namespace),
		Concepts:  make(map[ID][]string),
	}
	if doc.Concepts.Kind == 0 {
		return ext, nil
	}
	if doc.Concepts.Kind != yaml.MappingNode {
		return Extension{}, fmt.Errorf("%w: concepts must be a mapping", ErrInvalidExtension)
	}
	content := doc.Concepts.Content
	for i := 0; i+1 < len(content); i += 2 {
		id, err := ParseID(content[i].Value)
		if err != nil {
			return Extension{}, fmt.Errorf("%w: line %d: %v", ErrInvalidExtension, content[i].Line, err)
		}
		var names []string
		switch content[i+1].Kind {
		case yaml.ScalarNode:
			names = []string{content[i+1].Value}
		case yaml.SequenceNode:
			if err := content[i+1].Decode(&names); err != nil {
				return Extension{}, fmt.Errorf("%w: line %d: %v", ErrInvalidExtension, content[i+1].Line, err)
			}
		default:
			return Extension{}, fmt.Errorf("%w: line %d: names must be a list", ErrInvalidExtension, content[i+1].Line)
		}
		names = cleanNames(names)
		if len(names) == 0 {
			continue
		}
		ext.Concepts[id] = names
	}
	return ext, nil
}

// ParseID parses a non-zero concept id written in decimal or with a
// 0x prefix.
func ParseID(raw string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") {
		v, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("concept id %q: %w", raw, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("concept id %q: zero is reserved", raw)
	}
	return ID(v), nil
}

// Apply loads ext into the Atlas.
func (a *Atlas) Apply(ext Extension) error {
	if ext.Namespace != "" {
		return a.AddNamespace(Namespace{Name: ext.Namespace, Concepts: ext.Concepts})
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, names := range ext.Concepts {
		a.base.put(id, names[0])
		for _, alias := range names[1:] {
			a.aliases[alias] = id
		}
	}
	a.version++
	return nil
}

// LoadFile parses and applies one extension document.
func (a *Atlas) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ext, err := ParseExtension(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := a.Apply(ext); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().
		Str("component", "atlas").
		Str("path", path).
		Str("namespace", ext.Namespace).
		Int("concepts", len(ext.Concepts)).
		Msg("extension loaded")
	return nil
}

// LoadDir applies every *.yaml and *.yml file in dir in name order.
// A missing directory is not an error. Files that fail to load are
// logged and skipped; the count of loaded files is returned.
func (a *Atlas) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isExtensionFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := a.LoadFile(path); err != nil {
			log.Warn().Err(err).Str("component", "atlas").Str("path", path).Msg("extension skipped")
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (a *Atlas) loadBundled() error {
	entries, err := bundledPacks.ReadDir("packs")
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := bundledPacks.ReadFile("packs/" + e.Name())
		if err != nil {
			return err
		}
		ext, err := ParseExtension(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := a.Apply(ext); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

func isExtensionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
