package compiler

import (
	"context"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/graph"
	"github.com/danmuck/ual/internal/observability"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

// Urgent intents carry this urgency and Command style.
const UrgentLevel = 0.9

// DefaultMemoSize bounds the number of memoized compilations.
const DefaultMemoSize = 4096

var (
	negationWords = map[string]bool{"not": true, "no": true, "never": true, "dont": true, "don't": true}
	urgencyWords  = map[string]bool{"immediately": true, "urgent": true, "now": true, "emergency": true}
	prepositions  = map[string]bool{"to": true, "from": true, "at": true, "in": true, "on": true, "with": true, "by": true, "of": true}
)

type tokenKind uint8

const (
	tokNode tokenKind = iota
	tokValue
	tokSeparator
	tokLogicStart
	tokLogicElse
	tokPreposition
)

type token struct {
	kind     tokenKind
	word     string
	nodeID   string
	action   bool
	semantic atlas.ID
}

type boundary uint8

const (
	boundaryThen boundary = iota
	boundaryElse
	boundaryEnd
)

type memoEntry struct {
	text    string
	version uint64
	result  Result
}

// Rule is the bounded-grammar compiler. It is safe for concurrent use.
type Rule struct {
	atlas *atlas.Atlas
	memo  *ttlcache.Cache[uint64, memoEntry]
}

type RuleOption func(*ruleOptions)

type ruleOptions struct {
	memoSize uint64
}

// WithMemoSize bounds the memo; the least recently used entry is
// evicted when it is full.
func WithMemoSize(n uint64) RuleOption {
	return func(o *ruleOptions) {
		if n > 0 {
			o.memoSize = n
		}
	}
}

func NewRule(a *atlas.Atlas, opts ...RuleOption) *Rule {
	o := ruleOptions{memoSize: DefaultMemoSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Rule{
		atlas: a,
		memo: ttlcache.New[uint64, memoEntry](
			ttlcache.WithCapacity[uint64, memoEntry](o.memoSize),
		),
	}
}

// Compile parses text. Results are memoized by a hash of the raw text
// and are invalidated when the Atlas changes. The returned Result is
// a copy the caller may modify.
func (r *Rule) Compile(_ context.Context, text string) (Result, error) {
	key := xxhash.Sum64String(text)
	version := r.atlas.Version()
	if item := r.memo.Get(key); item != nil {
		entry := item.Value()
		if entry.text == text && entry.version == version {
			return entry.result.Clone(), nil
		}
	}

	res := r.parse(text)
	r.memo.Set(key, memoEntry{text: text, version: version, result: res}, ttlcache.NoTTL)

	if len(res.Dropped) > 0 {
		observability.RecordDroppedTokens(len(res.Dropped))
		log.Debug().
			Str("component", "compiler").
			Strs("dropped", res.Dropped).
			Msg("unresolved words dropped")
	}
	return res.Clone(), nil
}

func stripPunctuation(r rune) rune {
	switch r {
	case '.', ',', ';', ':', '!', '?':
		return -1
	default:
		return r
	}
}

type builder struct {
	nodes []graph.Node
	edges []graph.Edge
}

func (b *builder) add(n graph.Node) string {
	n.ID = graph.NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return n.ID
}

func (b *builder) link(source, target string, rel graph.Relation) {
	b.edges = append(b.edges, graph.NewEdge(source, target, rel))
}

func nodeTypeFor(id atlas.ID) graph.NodeType {
	switch atlas.CategoryOf(id) {
	case atlas.CategoryAction:
		return graph.Action
	case atlas.CategoryProperty:
		return graph.Property
	case atlas.CategoryLogic:
		return graph.Logic
	case atlas.CategoryModal:
		return graph.Modal
	default:
		return graph.Entity
	}
}

func (r *Rule) parse(text string) Result {
	words := strings.Fields(strings.Map(stripPunctuation, strings.ToLower(text)))
	res := Result{Metadata: Metadata{Style: graph.Neutral}}
	for _, w := range words {
		if urgencyWords[w] {
			res.Metadata.Urgency = UrgentLevel
			res.Metadata.Style = graph.Command
			break
		}
	}

	b := &builder{}
	tokens, dropped := r.tokenize(words, b)
	res.Dropped = dropped
	linkClauses(tokens, b)

	res.Nodes = b.nodes
	res.Edges = b.edges
	return res
}

// tokenize is the first pass: words to typed tokens. Nodes are created
// here in word order; edges only for negation.
func (r *Rule) tokenize(words []string, b *builder) ([]token, []string) {
	var (
		tokens  []token
		dropped []string
	)
	for i := 0; i < len(words); i++ {
		word := words[i]

		negated := false
		if negationWords[word] && i+1 < len(words) {
			negated = true
			i++
			word = words[i]
		}

		switch {
		case word == "and" || word == "then":
			tokens = append(tokens, token{kind: tokSeparator, word: word})
			continue
		case word == "if":
			id := b.add(graph.Node{Type: graph.Logic, SemanticID: uint32(atlas.If)})
			tokens = append(tokens, token{kind: tokLogicStart, word: word, nodeID: id, semantic: atlas.If})
			continue
		case word == "else":
			tokens = append(tokens, token{kind: tokLogicElse, word: word})
			continue
		case prepositions[word]:
			tokens = append(tokens, token{kind: tokPreposition, word: word})
			continue
		}

		var (
			semantic atlas.ID
			resolved bool
		)
		if i+1 < len(words) {
			if id, ok := r.atlas.Resolve(word + "_" + words[i+1]); ok {
				semantic, resolved = id, true
				i++
			}
		}
		if !resolved {
			semantic, resolved = r.atlas.Resolve(word)
		}

		if !resolved {
			if v, err := strconv.ParseFloat(word, 64); err == nil {
				id := b.add(graph.Node{Type: graph.Value, Literal: graph.NumberLiteral(v)})
				tokens = append(tokens, token{kind: tokValue, word: word, nodeID: id})
				continue
			}
			if !urgencyWords[word] {
				dropped = append(dropped, word)
			}
			continue
		}

		var notID string
		if negated {
			notID = b.add(graph.Node{Type: graph.Logic, SemanticID: uint32(atlas.Not)})
		}
		id := b.add(graph.Node{Type: nodeTypeFor(semantic), SemanticID: uint32(semantic)})
		if negated {
			b.link(notID, id, graph.Condition)
		}
		tokens = append(tokens, token{
			kind:     tokNode,
			word:     word,
			nodeID:   id,
			action:   atlas.IsAction(semantic),
			semantic: semantic,
		})
	}
	return tokens, dropped
}

// linkClauses is the second pass: split at separators and else, then
// link within and across clauses.
func linkClauses(tokens []token, b *builder) {
	var (
		clauses    [][]token
		boundaries []boundary
		current    []token
	)
	for _, tok := range tokens {
		switch tok.kind {
		case tokSeparator:
			clauses = append(clauses, current)
			boundaries = append(boundaries, boundaryThen)
			current = nil
		case tokLogicElse:
			clauses = append(clauses, current)
			boundaries = append(boundaries, boundaryElse)
			current = nil
		default:
			current = append(current, tok)
		}
	}
	if len(current) > 0 {
		clauses = append(clauses, current)
		boundaries = append(boundaries, boundaryEnd)
	}

	var prevAction, pendingIf string
	for idx, clause := range clauses {
		if len(clause) == 0 {
			continue
		}
		var (
			action, root, clauseIf string
			pendingValue           string
		)
		for _, tok := range clause {
			switch tok.kind {
			case tokLogicStart:
				clauseIf = tok.nodeID
				continue
			case tokValue:
				pendingValue = tok.nodeID
				continue
			case tokPreposition:
				continue
			}

			if root == "" {
				root = tok.nodeID
			}
			if tok.action {
				action = tok.nodeID
				root = tok.nodeID
				if prevAction != "" && pendingIf == "" {
					b.link(prevAction, action, graph.Next)
				}
				prevAction = action
				if pendingValue != "" {
					b.link(action, pendingValue, graph.Attribute)
					pendingValue = ""
				}
				continue
			}

			if pendingValue != "" {
				b.link(tok.nodeID, pendingValue, graph.Attribute)
				pendingValue = ""
			}
			if action != "" {
				rel := graph.Argument
				if atlas.IsTemporal(tok.semantic) {
					rel = graph.Temporal
				}
				b.link(action, tok.nodeID, rel)
			}
		}

		switch {
		case clauseIf != "":
			pendingIf = clauseIf
			if root != "" {
				b.link(clauseIf, root, graph.Condition)
			}
		case pendingIf != "":
			prev := boundaryEnd
			if idx > 0 {
				prev = boundaries[idx-1]
			}
			switch prev {
			case boundaryThen:
				if root != "" {
					b.link(pendingIf, root, graph.Consequence)
				}
			case boundaryElse:
				if root != "" {
					b.link(pendingIf, root, graph.Alternative)
				}
				pendingIf = ""
			}
		}
	}
}
