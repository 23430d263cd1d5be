package names

import "testing"

func TestResolveProviderFallsBackOnPrefix(t *testing.T) {
	if got := ResolveProvider("gpt-4o-mini"); got != "openai" {
		t.Fatalf("expected openai, got %s", got)
	}
	if got := ResolveProvider("claude-sonnet-4-5-preview"); got != "anthropic" {
		t.Fatalf("expected anthropic, got %s", got)
	}
}

func TestResolveProviderUnknownModel(t *testing.T) {
	if got := ResolveProvider("totally-made-up-model"); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestAssignDisplayNamesSuffixesOnCollision(t *testing.T) {
	a, b := AssignDisplayNames("gpt-4o", "gpt-4o", "", "")
	if a != "gpt-4o-A" || b != "gpt-4o-B" {
		t.Fatalf("expected suffixed names, got %s / %s", a, b)
	}
}

func TestAssignDisplayNamesKeepsDistinctNames(t *testing.T) {
	a, b := AssignDisplayNames("gpt-4o", "claude-sonnet-4-5", "Ada", "")
	if a != "Ada" || b != "claude-sonnet-4-5" {
		t.Fatalf("expected distinct names preserved, got %s / %s", a, b)
	}
}

func TestExtractChosenNameRecognizesPatterns(t *testing.T) {
	cases := map[string]string{
		"I'll go by Orion for this conversation.": "Orion",
		`Sure, call me Sage.`:                     "Sage",
		`My name is Vesper, nice to meet you.`:     "Vesper",
		`[Nox] Let's begin.`:                       "Nox",
		`I choose Lyric as my name.`:               "Lyric",
		`I am Fable, pleased to meet you.`:         "Fable",
		"Rin here. Let's get started.":             "Rin",
	}
	for text, want := range cases {
		if got := ExtractChosenName(text); got != want {
			t.Fatalf("text %q: expected %q, got %q", text, want, got)
		}
	}
}

func TestExtractChosenNameReturnsEmptyWhenAbsent(t *testing.T) {
	if got := ExtractChosenName("Let's talk about the weather."); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
