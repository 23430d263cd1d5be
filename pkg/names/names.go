// Package names resolves model identifiers to providers, assigns agent
// display names, and extracts a self-chosen name from free text.
package names

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pidginhq/pidgin/internal/providers"
)

// ResolveProvider maps a model identifier to its provider id, consulting
// the registry's exact/prefix/fuzzy matching. If the registry has nothing
// for it, it falls back to substring matching on well-known prefixes.
func ResolveProvider(modelID string) string {
	registry := providers.GetRegistry()
	if _, provider, err := registry.GetModel(modelID); err == nil {
		return provider.ID
	}

	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "gpt") || strings.Contains(lower, "o1") || strings.Contains(lower, "o3"):
		return "openai"
	case strings.Contains(lower, "claude"):
		return "anthropic"
	case strings.Contains(lower, "gemini"):
		return "google"
	case strings.Contains(lower, "qwen"):
		return "openrouter"
	case strings.Contains(lower, "deepseek"):
		return "openrouter"
	default:
		return "unknown"
	}
}

// AssignDisplayNames returns the display names for agent_a and agent_b.
// If both use the same model, they are suffixed -A / -B to disambiguate.
func AssignDisplayNames(modelA, modelB, nameA, nameB string) (string, string) {
	if nameA == "" {
		nameA = modelA
	}
	if nameB == "" {
		nameB = modelB
	}
	if modelA == modelB {
		return fmt.Sprintf("%s-A", nameA), fmt.Sprintf("%s-B", nameB)
	}
	return nameA, nameB
}

// chosenNamePatterns mirrors name_coordinator.py's extract_chosen_name
// pattern list: "I'll go by/be/choose X", "Call me X", "My name is X",
// "I choose/select X", "I am X", and "[X] here" at the start of a message,
// each tolerant of an optional bracket around the name.
var chosenNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i(?:'ll| will) (?:go by|be|choose) \[?([A-Za-z][A-Za-z '-]{1,7})\]?`),
	regexp.MustCompile(`(?i)call me \[?([A-Za-z][A-Za-z '-]{1,7})\]?`),
	regexp.MustCompile(`(?i)my name is \[?([A-Za-z][A-Za-z '-]{1,7})\]?`),
	regexp.MustCompile(`(?i)i (?:choose|select) \[?([A-Za-z][A-Za-z '-]{1,7})\]?`),
	regexp.MustCompile(`(?i)i am \[?([A-Za-z][A-Za-z '-]{1,7})\]?`),
	regexp.MustCompile(`(?im)^\[?([A-Za-z][A-Za-z '-]{1,7})\]? here`),
}

// chosenNameQuoted and chosenNameBracketed are the fallback passes the
// original applies after the specific patterns above come up empty.
var (
	chosenNameQuoted    = regexp.MustCompile(`["']\[?([A-Za-z][A-Za-z '-]{1,7})\]?["']`)
	chosenNameBracketed = regexp.MustCompile(`\[([A-Za-z][A-Za-z '-]{1,7})\]`)
)

// ExtractChosenName searches text for a self-introduced name such as
// "I'll go by Orion", "I am Orion", "[Orion] here", or "[Orion]",
// returning the first word of the match, trimmed, when it is 2-8
// characters long, or "" if nothing recognizable was found.
func ExtractChosenName(text string) string {
	for _, re := range chosenNamePatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			if candidate := cleanChosenName(m[1]); candidate != "" {
				return candidate
			}
		}
	}
	if m := chosenNameQuoted.FindStringSubmatch(text); len(m) == 2 {
		if candidate := cleanChosenName(m[1]); candidate != "" {
			return candidate
		}
	}
	if m := chosenNameBracketed.FindStringSubmatch(text); len(m) == 2 {
		if candidate := cleanChosenName(m[1]); candidate != "" {
			return candidate
		}
	}
	return ""
}

func cleanChosenName(raw string) string {
	candidate := strings.TrimSpace(strings.Trim(raw, ".,!?[]"))
	if fields := strings.Fields(candidate); len(fields) > 0 {
		candidate = strings.Trim(fields[0], ".,!?[]")
	}
	if len(candidate) >= 2 && len(candidate) <= 8 {
		return candidate
	}
	return ""
}
