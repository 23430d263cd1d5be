// Package ratelimit implements per-provider sliding-window admission
// control. Unlike a token bucket, a sliding window tracks the actual
// timestamped events (requests, token usage) that fall inside the trailing
// 60 seconds, which is what lets Pidgin pace both a request-rate and a
// token-rate budget independently for the same provider.
package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const window = 60 * time.Second

// Reason explains which window forced a wait.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonRequestRate Reason = "request_rate"
	ReasonTokenRate   Reason = "token_rate"
	ReasonMixed       Reason = "mixed"
)

// Defaults applied to any provider without explicit configuration.
const (
	DefaultRequestsPerMinute = 50
	DefaultTokensPerMinute   = 100_000
)

type tokenEntry struct {
	completedAt time.Time
	tokens      int
}

// Limiter tracks the two sliding windows for a single provider.
type Limiter struct {
	mu               sync.Mutex
	requestsPerMin   int
	tokensPerMin     int
	requestTimes     *list.List // of time.Time, oldest first
	tokenEntries     *list.List // of tokenEntry, oldest first
	tokensInWindow   int
	cooldownUntil    time.Time
}

// NewLimiter creates a limiter for one provider. A non-positive value for
// either limit falls back to the package defaults.
func NewLimiter(requestsPerMinute, tokensPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if tokensPerMinute <= 0 {
		tokensPerMinute = DefaultTokensPerMinute
	}
	return &Limiter{
		requestsPerMin: requestsPerMinute,
		tokensPerMin:   tokensPerMinute,
		requestTimes:   list.New(),
		tokenEntries:   list.New(),
	}
}

// Result reports what Acquire observed, for telemetry (RateLimitPace).
type Result struct {
	Wait   time.Duration
	Reason Reason
}

// Acquire blocks until admitting one more request with an estimated token
// cost would not exceed either sliding window, then records the request's
// start time. The returned Result.Wait is the total time spent sleeping,
// reported so the caller can decide whether to emit a RateLimitPace event.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (Result, error) {
	totalWait := time.Duration(0)
	var reason Reason

	for {
		if cd := l.cooldownRemaining(time.Now()); cd > 0 {
			if err := sleep(ctx, cd); err != nil {
				return Result{Wait: totalWait, Reason: reason}, err
			}
			totalWait += cd
			continue
		}

		reqWait, tokWait := l.pendingWaits(estimatedTokens)
		wait := maxDuration(reqWait, tokWait)
		if wait <= 0 {
			break
		}

		switch {
		case reqWait > 0 && tokWait > 0:
			reason = ReasonMixed
		case reqWait > 0:
			reason = ReasonRequestRate
		case tokWait > 0:
			reason = ReasonTokenRate
		}

		if err := sleep(ctx, wait); err != nil {
			return Result{Wait: totalWait, Reason: reason}, err
		}
		totalWait += wait
	}

	l.mu.Lock()
	now := time.Now()
	l.pruneLocked(now)
	l.requestTimes.PushBack(now)
	l.mu.Unlock()

	return Result{Wait: totalWait, Reason: reason}, nil
}

// RecordRequestComplete records actual token usage in the token window
// once a request has finished. duration is accepted for symmetry with the
// contract's telemetry hook but does not currently affect admission.
func (l *Limiter) RecordRequestComplete(actualTokens int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.pruneLocked(now)
	l.tokenEntries.PushBack(tokenEntry{completedAt: now, tokens: actualTokens})
	l.tokensInWindow += actualTokens
}

// pendingWaits returns how long the caller must sleep before the request
// and token windows, respectively, would admit one more call.
func (l *Limiter) pendingWaits(estimatedTokens int) (time.Duration, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.pruneLocked(now)

	var reqWait time.Duration
	if l.requestTimes.Len() >= l.requestsPerMin {
		oldest := l.requestTimes.Front().Value.(time.Time)
		reqWait = window - now.Sub(oldest)
		if reqWait < 0 {
			reqWait = 0
		}
	}

	var tokWait time.Duration
	if l.tokensInWindow+estimatedTokens > l.tokensPerMin {
		for e := l.tokenEntries.Front(); e != nil; e = e.Next() {
			entry := e.Value.(tokenEntry)
			projected := l.tokensInWindow - entry.tokens
			wait := window - now.Sub(entry.completedAt)
			if projected+estimatedTokens <= l.tokensPerMin {
				if wait > tokWait {
					tokWait = wait
				}
				break
			}
			if wait > tokWait {
				tokWait = wait
			}
		}
		if tokWait < 0 {
			tokWait = 0
		}
	}

	return reqWait, tokWait
}

// pruneLocked drops window entries older than 60 seconds. Caller must hold mu.
func (l *Limiter) pruneLocked(now time.Time) {
	for e := l.requestTimes.Front(); e != nil; {
		next := e.Next()
		if now.Sub(e.Value.(time.Time)) > window {
			l.requestTimes.Remove(e)
		} else {
			break
		}
		e = next
	}
	for e := l.tokenEntries.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(tokenEntry)
		if now.Sub(entry.completedAt) > window {
			l.tokensInWindow -= entry.tokens
			l.tokenEntries.Remove(e)
		} else {
			break
		}
		e = next
	}
}

// Pause blocks admission for at least d, honoring a server Retry-After.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}
	l.mu.Unlock()
}

func (l *Limiter) cooldownRemaining(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cooldownUntil.IsZero() || !now.Before(l.cooldownUntil) {
		return 0
	}
	return l.cooldownUntil.Sub(now)
}

// Stats reports the current sliding-window occupancy, for TokenUsage events.
type Stats struct {
	RequestsInWindow int
	TokensInWindow   int
	RequestsPerMin   int
	TokensPerMin     int
}

// Stats returns a snapshot of current window occupancy.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return Stats{
		RequestsInWindow: l.requestTimes.Len(),
		TokensInWindow:   l.tokensInWindow,
		RequestsPerMin:   l.requestsPerMin,
		TokensPerMin:     l.tokensPerMin,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// EstimateTokens approximates a message history's token cost using
// chars/3.5 plus a small fixed overhead, per-provider. Large, well-known
// vendors get a bigger constant to account for richer chat-template
// scaffolding; everything else uses a smaller default.
func EstimateTokens(text string, provider string) int {
	overhead := 100
	switch provider {
	case "openai", "anthropic", "google", "azure":
		overhead = 200
	}
	return int(float64(len(text))/3.5) + overhead
}
