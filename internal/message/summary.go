package message

import (
	"fmt"
	"strings"

	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/graph"
)

const (
	unknownAction   = "unknown_action"
	embeddingMarker = " [embedding]"
	phraseSeparator = "; "
)

// glossRelations are the edges whose targets complete an action's
// phrase. Sequencing and logic edges link whole phrases and are left
// out.
var glossRelations = map[graph.Relation]bool{
	graph.Argument:  true,
	graph.Attribute: true,
	graph.Temporal:  true,
}

// Summarize renders a best-effort gloss of g. Each Action node becomes
// a phrase of its concept name followed by the targets of its outgoing
// argument, attribute and temporal edges; phrases are joined with "; ". A graph without actions is
// rendered as a flat list of its literal values and concept names.
func Summarize(a *atlas.Atlas, g graph.Graph) string {
	byID := make(map[string]graph.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	var phrases []string
	for _, n := range g.Nodes {
		if n.Type != graph.Action {
			continue
		}
		name, ok := a.Describe(atlas.ID(n.SemanticID))
		if !ok {
			name = unknownAction
		}
		parts := []string{name}
		for _, e := range g.Outgoing(n.ID) {
			if !glossRelations[e.Relation] {
				continue
			}
			target, ok := byID[e.Target]
			if !ok {
				continue
			}
			word := nodeWord(a, target)
			if word == "" {
				continue
			}
			if target.HasEmbedding() {
				word += embeddingMarker
			}
			parts = append(parts, word)
		}
		phrases = append(phrases, strings.Join(parts, " "))
	}
	if len(phrases) > 0 {
		return strings.Join(phrases, phraseSeparator)
	}

	var flat []string
	for _, n := range g.Nodes {
		if word := nodeWord(a, n); word != "" {
			flat = append(flat, word)
		}
	}
	return strings.Join(flat, " ")
}

func nodeWord(a *atlas.Atlas, n graph.Node) string {
	if n.SemanticID != 0 {
		if name, ok := a.Describe(atlas.ID(n.SemanticID)); ok {
			return name
		}
	}
	return n.Literal.Text()
}

func handshakeSummary(h Handshake) string {
	return fmt.Sprintf("Handshake from %s (compute: %d, namespaces: [%s])",
		h.AgentID, h.ComputePower, strings.Join(h.Namespaces, ", "))
}
