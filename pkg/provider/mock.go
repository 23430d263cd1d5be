package provider

import (
	"context"
	"sync"

	"github.com/pidginhq/pidgin/pkg/event"
)

// MockProvider is an in-process Provider that echoes a scripted reply (or a
// deterministic canned one) without making any network call. It exists for
// local testing of the conductor and turn executor, and is wired in by
// `pidgin run --mock` for trying out a configuration without API keys.
type MockProvider struct {
	mu        sync.Mutex
	Replies   []string
	callIndex int
	usage     *event.Usage
	Err       error
}

// NewMockProvider constructs a MockProvider that cycles through replies in
// order, repeating the last one once exhausted. An empty replies list falls
// back to a single generic acknowledgement.
func NewMockProvider(replies ...string) *MockProvider {
	if len(replies) == 0 {
		replies = []string{"Understood."}
	}
	return &MockProvider{Replies: replies}
}

// StreamResponse returns the next scripted reply as a single chunk.
func (m *MockProvider) StreamResponse(ctx context.Context, messages []event.Message, temperature *float64) (<-chan string, <-chan error) {
	chunkCh := make(chan string, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	if m.Err != nil {
		err := m.Err
		m.mu.Unlock()
		close(chunkCh)
		errCh <- err
		close(errCh)
		return chunkCh, errCh
	}

	reply := m.Replies[min(m.callIndex, len(m.Replies)-1)]
	m.callIndex++
	m.usage = &event.Usage{
		PromptTokens:     estimateRoughTokens(messages),
		CompletionTokens: estimateRoughTokenCount(reply),
		TotalTokens:      estimateRoughTokens(messages) + estimateRoughTokenCount(reply),
	}
	m.mu.Unlock()

	select {
	case chunkCh <- reply:
	case <-ctx.Done():
	}
	close(chunkCh)
	close(errCh)
	return chunkCh, errCh
}

// GetLastUsage returns the synthesized usage for the most recent call.
func (m *MockProvider) GetLastUsage() *event.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func estimateRoughTokens(messages []event.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateRoughTokenCount(msg.Content)
	}
	return total
}

func estimateRoughTokenCount(text string) int {
	return len(text)/4 + 1
}

var _ Provider = (*MockProvider)(nil)
