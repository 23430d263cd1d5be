// Package convergence scores how similar two agents' most recent
// utterances have become, so the turn executor can decide whether a
// conversation has converged and should stop early.
package convergence

import (
	"strings"

	"github.com/pidginhq/pidgin/pkg/event"
)

// Calculate returns a score in [0, 1] for how similar the two agents' most
// recent messages are: a blend of vocabulary overlap (Jaccard similarity
// over lowercased word sets) and a length-ratio term. It is a pure,
// deterministic function of the message list -- no state, no randomness.
func Calculate(messages []event.Message) float64 {
	lastA, lastB := lastTwoAgentMessages(messages)
	if lastA == "" || lastB == "" {
		return 0
	}

	overlap := jaccard(wordSet(lastA), wordSet(lastB))
	ratio := lengthRatio(lastA, lastB)

	return 0.7*overlap + 0.3*ratio
}

// lastTwoAgentMessages returns the most recent content from agent_a and
// agent_b respectively, scanning from the end of the history.
func lastTwoAgentMessages(messages []event.Message) (a, b string) {
	for i := len(messages) - 1; i >= 0 && (a == "" || b == ""); i-- {
		m := messages[i]
		switch m.AgentID {
		case "agent_a":
			if a == "" {
				a = m.Content
			}
		case "agent_b":
			if b == "" {
				b = m.Content
			}
		}
	}
	return a, b
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func lengthRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter) / float64(longer)
}
