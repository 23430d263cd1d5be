package httpprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pidginhq/pidgin/pkg/event"
)

func TestStreamResponseAssemblesChunksAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "gpt-4o")
	chunkCh, errCh := client.StreamResponse(context.Background(), []event.Message{{Role: event.RoleUser, Content: "hi"}}, nil)

	var got string
	for chunk := range chunkCh {
		got += chunk
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "hello" {
		t.Fatalf("expected assembled 'hello', got %q", got)
	}

	usage := client.GetLastUsage()
	if usage == nil || usage.TotalTokens != 7 {
		t.Fatalf("expected usage with 7 total tokens, got %+v", usage)
	}
}

func TestStreamResponseNonRetryableErrorReturnsImmediately(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	client := New(server.URL, "bad-key", "gpt-4o")
	chunkCh, errCh := client.StreamResponse(context.Background(), []event.Message{{Role: event.RoleUser, Content: "hi"}}, nil)

	for range chunkCh {
	}
	err := <-errCh
	if err == nil {
		t.Fatal("expected an error for 401 response")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", calls)
	}
}

func TestParseRetryAfterHeaderSeconds(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	if got := parseRetryAfterHeader(resp); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
}

func TestParseRetryAfterMessage(t *testing.T) {
	if got := parseRetryAfterMessage("please try again in 3.5s"); got != 3500*time.Millisecond {
		t.Fatalf("expected 3.5s, got %v", got)
	}
	if got := parseRetryAfterMessage("no timing info here"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestShouldRetryClassification(t *testing.T) {
	if !shouldRetry(fmt.Errorf("HTTP 503: server error")) {
		t.Fatal("expected 5xx to be retryable")
	}
	if shouldRetry(fmt.Errorf("HTTP 400: bad request")) {
		t.Fatal("expected 4xx to not be retryable")
	}
}
