package llm

import (
	"fmt"
	"strings"

	"github.com/danmuck/ual/internal/atlas"
)

const systemPrompt = `You compile natural-language commands for machine agents into a semantic graph.
Reply with one JSON object and nothing else.`

const fewShot = `Input: "Move to kitchen"
Output: {"header":{"urgency":0.5,"style":2},"nodes":[{"id":"n1","semantic_id":"0xA1","type":2,"value":"move"},{"id":"n2","semantic_id":"0xE6","type":1,"value":"kitchen"}],"edges":[{"source":"n1","target":"n2","relation":3}]}

Input: "Do not move"
Output: {"header":{"urgency":0.5,"style":2},"nodes":[{"id":"n1","semantic_id":"0xC6","type":4,"value":"not"},{"id":"n2","semantic_id":"0xA1","type":2,"value":"move"}],"edges":[{"source":"n1","target":"n2","relation":4}]}

Input: "Scan area and return to base"
Output: {"header":{"urgency":0.5,"style":2},"nodes":[{"id":"n1","semantic_id":"0xA2","type":2,"value":"scan"},{"id":"n2","semantic_id":"0xE2","type":1,"value":"area"},{"id":"n3","semantic_id":"0xA1","type":2,"value":"return"},{"id":"n4","semantic_id":"0xE4","type":1,"value":"base"}],"edges":[{"source":"n1","target":"n2","relation":3},{"source":"n1","target":"n3","relation":1},{"source":"n3","target":"n4","relation":3}]}

Input: "If obstacle then stop immediately"
Output: {"header":{"urgency":0.9,"style":2},"nodes":[{"id":"n1","semantic_id":"0xC1","type":4,"value":"if"},{"id":"n2","semantic_id":"0xE3","type":1,"value":"obstacle"},{"id":"n3","semantic_id":"0xA5","type":2,"value":"stop"}],"edges":[{"source":"n1","target":"n2","relation":4},{"source":"n1","target":"n3","relation":5}]}

Input: "Hover at 10, 20, 5"
Output: {"header":{"urgency":0.5,"style":2},"env_frame":{"origin":[10,20,5],"unit":"meter"},"nodes":[{"id":"n1","semantic_id":"0xA5","type":2,"value":"hover"}],"edges":[]}

Input: "Uncertainty is high"
Output: {"header":{"urgency":0.3,"style":0},"nodes":[{"id":"n1","semantic_id":"0xF1","type":3,"value":"uncertainty"},{"id":"n2","semantic_id":0,"type":6,"value":"high"}],"edges":[{"source":"n1","target":"n2","relation":2}]}`

func userPrompt(concepts, text string) string {
	var b strings.Builder
	b.WriteString("[CONSTRAINTS]\n")
	b.WriteString("1. Use only semantic ids from the atlas below, as \"0x..\" strings. Use 0 for concepts the atlas lacks.\n")
	b.WriteString("2. Node types: 1=entity 2=action 3=property 4=logic 5=modal 6=value.\n")
	b.WriteString("3. Edge relations: 0=depends_on 1=next 2=attribute 3=argument 4=condition 5=consequence 6=alternative 7=temporal.\n")
	b.WriteString("4. Put urgency (0.0-1.0) and style (0=neutral 1=request 2=command) in header.\n")
	b.WriteString("5. Put any mentioned coordinates in env_frame.\n\n")
	b.WriteString("[ATLAS]\n")
	b.WriteString(concepts)
	b.WriteString("\n\n[EXAMPLES]\n")
	b.WriteString(fewShot)
	fmt.Fprintf(&b, "\n\nInput: %q\nOutput:", text)
	return b.String()
}

// RelevantConcepts lists the atlas subset worth sending to the model:
// every logic and modal concept, plus concepts whose name or alias
// appears in text.
func RelevantConcepts(a *atlas.Atlas, text string) string {
	lower := strings.ToLower(text)
	var lines []string
	for _, c := range a.Concepts() {
		cat := atlas.CategoryOf(c.ID)
		if cat == atlas.CategoryLogic || cat == atlas.CategoryModal || mentioned(lower, c) {
			lines = append(lines, fmt.Sprintf("- %s: 0x%X", c.Name, uint32(c.ID)))
		}
	}
	return strings.Join(lines, "\n")
}

func mentioned(text string, c atlas.Concept) bool {
	names := append([]string{c.Name}, c.Aliases...)
	for _, n := range names {
		if n == "" {
			continue
		}
		if strings.Contains(text, n) {
			return true
		}
		if len(n) > 3 && strings.Contains(text, n[:len(n)-1]) {
			return true
		}
	}
	return false
}
