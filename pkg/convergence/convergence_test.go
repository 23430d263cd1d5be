package convergence

import (
	"testing"

	"github.com/pidginhq/pidgin/pkg/event"
)

func msg(agentID, content string) event.Message {
	return event.Message{AgentID: agentID, Content: content, Role: event.RoleAssistant}
}

func TestCalculateIdenticalMessagesScoreHigh(t *testing.T) {
	messages := []event.Message{
		msg("agent_a", "same"),
		msg("agent_b", "same"),
	}
	score := Calculate(messages)
	if score < 0.9 {
		t.Fatalf("expected near-identical messages to score high, got %f", score)
	}
}

func TestCalculateDissimilarMessagesScoreLow(t *testing.T) {
	messages := []event.Message{
		msg("agent_a", "quantum entanglement and cosmology"),
		msg("agent_b", "banana bread recipe tips"),
	}
	score := Calculate(messages)
	if score > 0.3 {
		t.Fatalf("expected dissimilar messages to score low, got %f", score)
	}
}

func TestCalculateBounded(t *testing.T) {
	messages := []event.Message{
		msg("agent_a", "one two three four five six seven"),
		msg("agent_b", "one"),
	}
	score := Calculate(messages)
	if score < 0 || score > 1 {
		t.Fatalf("expected score in [0,1], got %f", score)
	}
}

func TestCalculateEmptyHistoryIsZero(t *testing.T) {
	if score := Calculate(nil); score != 0 {
		t.Fatalf("expected 0 for empty history, got %f", score)
	}
}

func TestCalculateUsesMostRecentPerAgent(t *testing.T) {
	messages := []event.Message{
		msg("agent_a", "completely different opening"),
		msg("agent_b", "completely different opening"),
		msg("agent_a", "same"),
		msg("agent_b", "same"),
	}
	score := Calculate(messages)
	if score < 0.9 {
		t.Fatalf("expected score to reflect the most recent pair, got %f", score)
	}
}
