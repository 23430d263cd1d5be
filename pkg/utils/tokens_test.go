package utils

import "testing"

func TestEstimateCostKnownModel(t *testing.T) {
	cost := EstimateCost("gpt-4o", 1_000_000, 1_000_000)
	if cost <= 0 {
		t.Fatalf("expected positive cost for known model, got %f", cost)
	}
}

func TestEstimateCostUnknownModelIsZero(t *testing.T) {
	cost := EstimateCost("not-a-real-model", 1000, 1000)
	if cost != 0 {
		t.Fatalf("expected zero cost for unknown model, got %f", cost)
	}
}

func TestCountWords(t *testing.T) {
	cases := map[string]int{
		"":                 0,
		"one":              1,
		"one two three":    3,
		"  leading spaces": 2,
		"trailing  ":       1,
	}
	for text, want := range cases {
		if got := CountWords(text); got != want {
			t.Fatalf("CountWords(%q) = %d, want %d", text, got, want)
		}
	}
}
