// Package httpprovider implements pkg/provider.Provider against any
// OpenAI-compatible chat completions endpoint, with streaming, retry with
// jittered exponential backoff, and Retry-After extraction from headers,
// JSON bodies, and free-text error messages.
package httpprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/event"
)

// Client is an HTTP client for OpenAI-compatible chat completion APIs. It
// implements pkg/provider.Provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int

	mu        sync.Mutex
	lastUsage *event.Usage
}

// New creates a new OpenAI-compatible provider client.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxRetries: 3,
	}
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature *float64                `json:"temperature,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionStreamChunk struct {
	Choices []chatCompletionStreamChoice `json:"choices"`
	Usage   *chatCompletionUsage         `json:"usage,omitempty"`
}

type chatCompletionStreamChoice struct {
	Delta chatCompletionMessageDelta `json:"delta"`
}

type chatCompletionMessageDelta struct {
	Content string `json:"content,omitempty"`
}

// apiError represents a structured HTTP error with optional Retry-After
// information extracted from the response.
type apiError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// StreamResponse sends messages to the chat completions endpoint and
// streams back text chunks over the returned channel.
func (c *Client) StreamResponse(ctx context.Context, messages []event.Message, temperature *float64) (<-chan string, <-chan error) {
	chunkCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		req := chatCompletionRequest{
			Model:       c.model,
			Messages:    toWireMessages(messages),
			Temperature: temperature,
		}

		usage, err := c.streamWithRetry(ctx, req, chunkCh)
		if err != nil {
			errCh <- err
			return
		}

		if usage != nil {
			c.mu.Lock()
			c.lastUsage = &event.Usage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			}
			c.mu.Unlock()
		}
	}()

	return chunkCh, errCh
}

// GetLastUsage returns token accounting from the most recently completed
// call, or nil if the provider never reported usage.
func (c *Client) GetLastUsage() *event.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

func toWireMessages(messages []event.Message) []chatCompletionMessage {
	out := make([]chatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *Client) streamWithRetry(ctx context.Context, req chatCompletionRequest, chunkCh chan<- string) (*chatCompletionUsage, error) {
	req.Stream = true

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay(attempt, retryAfter)
			pidginlog.WithFields(map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
			}).Debug("retrying streaming chat completion request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		retryAfter = 0
		httpReq, err := c.prepareStreamRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if shouldRetry(lastErr) {
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode != http.StatusOK {
			err = c.handleErrorResponse(resp)
			resp.Body.Close()
			lastErr = err
			if apiErr, ok := err.(*apiError); ok {
				retryAfter = apiErr.RetryAfter
				if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
					continue
				}
			}
			if shouldRetry(err) {
				continue
			}
			return nil, err
		}

		usage, err := c.processStreamResponse(resp.Body, chunkCh)
		resp.Body.Close()
		return usage, err
	}

	return nil, fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) prepareStreamRequest(ctx context.Context, req chatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	pidginlog.WithFields(map[string]interface{}{
		"url":   httpReq.URL.String(),
		"model": req.Model,
	}).Debug("sending streaming chat completion request")

	return httpReq, nil
}

func (c *Client) processStreamResponse(body io.Reader, chunkCh chan<- string) (*chatCompletionUsage, error) {
	scanner := bufio.NewScanner(body)
	var usage *chatCompletionUsage

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			pidginlog.WithError(err).WithField("data", data).Warn("failed to parse stream chunk")
			continue
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			chunkCh <- chunk.Choices[0].Delta.Content
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("error reading stream: %w", err)
	}

	return usage, nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("HTTP %d (failed to read error body: %w)", resp.StatusCode, err)
	}

	var errorResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	retryAfter := parseRetryAfter(resp, body)

	if err := json.Unmarshal(body, &errorResp); err == nil {
		if strings.TrimSpace(errorResp.Error.Message) != "" {
			message = strings.TrimSpace(errorResp.Error.Message)
		}
	}

	retryAfter = maxDuration(retryAfter, parseRetryAfterMessage(message))

	return &apiError{
		StatusCode: resp.StatusCode,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

var retryAfterMessageRe = regexp.MustCompile(`(?i)(?:try again in|retry after)\s*([0-9]+(?:\.[0-9]+)?)s`)

func parseRetryAfter(resp *http.Response, body []byte) time.Duration {
	return maxDuration(parseRetryAfterHeader(resp), parseRetryAfterBody(body))
}

func parseRetryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait
		}
	}
	return 0
}

func parseRetryAfterBody(body []byte) time.Duration {
	if len(body) == 0 {
		return 0
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	return parseRetryAfterMap(payload)
}

func parseRetryAfterMap(payload map[string]interface{}) time.Duration {
	var maxDelay time.Duration
	maxDelay = maxDuration(maxDelay, parseDurationField(payload, "retry_after_ms", time.Millisecond))
	maxDelay = maxDuration(maxDelay, parseDurationField(payload, "retry_after", time.Second))
	maxDelay = maxDuration(maxDelay, parseDurationField(payload, "retry_after_seconds", time.Second))

	if errObj, ok := payload["error"].(map[string]interface{}); ok {
		maxDelay = maxDuration(maxDelay, parseDurationField(errObj, "retry_after_ms", time.Millisecond))
		maxDelay = maxDuration(maxDelay, parseDurationField(errObj, "retry_after", time.Second))
		maxDelay = maxDuration(maxDelay, parseDurationField(errObj, "retry_after_seconds", time.Second))
	}

	return maxDelay
}

func parseDurationField(payload map[string]interface{}, key string, unit time.Duration) time.Duration {
	raw, ok := payload[key]
	if !ok {
		return 0
	}
	switch value := raw.(type) {
	case float64:
		if value <= 0 {
			return 0
		}
		return time.Duration(value * float64(unit))
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && parsed > 0 {
			return time.Duration(parsed * float64(unit))
		}
	}
	return 0
}

func parseRetryAfterMessage(message string) time.Duration {
	if message == "" {
		return 0
	}
	match := retryAfterMessageRe.FindStringSubmatch(message)
	if len(match) < 2 {
		return 0
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	shift := min(attempt-1, 30)
	//nolint:gosec // G115: shift is bounded by min(maxRetries, 30), safe from overflow
	backoff := time.Duration(1<<uint(shift)) * time.Second

	if retryAfter > 0 {
		retryAfter += retrySafetyMargin(retryAfter)
		if retryAfter > backoff {
			backoff = retryAfter
		}
	}

	return addJitter(backoff)
}

func retrySafetyMargin(wait time.Duration) time.Duration {
	if wait <= 0 {
		return 0
	}
	margin := time.Duration(float64(wait) * 0.10)
	if margin < 25*time.Millisecond {
		margin = 25 * time.Millisecond
	}
	if margin > 500*time.Millisecond {
		margin = 500 * time.Millisecond
	}
	return margin
}

func addJitter(wait time.Duration) time.Duration {
	if wait <= 0 {
		return 0
	}
	maxJitter := wait / 10
	if maxJitter < 10*time.Millisecond {
		return wait
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(maxJitter))
	return wait + jitter
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	if strings.Contains(errStr, "HTTP 5") {
		return true
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") || strings.Contains(errStr, "EOF") {
		return true
	}
	return false
}
