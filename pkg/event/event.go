package event

import "time"

// Type is the discriminator tag carried by every event.
type Type string

const (
	TypeConversationStart    Type = "ConversationStart"
	TypeSystemPrompt         Type = "SystemPrompt"
	TypeTurnStart            Type = "TurnStart"
	TypeMessageRequest       Type = "MessageRequest"
	TypeMessageChunk         Type = "MessageChunk"
	TypeMessageComplete      Type = "MessageComplete"
	TypeTurnComplete         Type = "TurnComplete"
	TypeConversationEnd      Type = "ConversationEnd"
	TypeAPIError             Type = "APIError"
	TypeProviderTimeout      Type = "ProviderTimeout"
	TypeRateLimitPace        Type = "RateLimitPace"
	TypeTokenUsage           Type = "TokenUsage"
	TypeContextTruncation    Type = "ContextTruncation"
	TypeInterruptRequest     Type = "InterruptRequest"
	TypeConversationPaused   Type = "ConversationPaused"
	TypeConversationResumed  Type = "ConversationResumed"
)

// EndReason enumerates why a conversation stopped.
type EndReason string

const (
	EndMaxTurnsReached EndReason = "max_turns_reached"
	EndHighConvergence EndReason = "high_convergence"
	EndInterrupted     EndReason = "interrupted"
	EndError           EndReason = "error"
)

// PaceReason enumerates why the rate limiter paced a request.
type PaceReason string

const (
	PaceRequestRate PaceReason = "request_rate"
	PaceTokenRate   PaceReason = "token_rate"
	PaceMixed       PaceReason = "mixed"
)

// InterruptSource enumerates what raised an interrupt.
type InterruptSource string

const (
	InterruptUser         InterruptSource = "user"
	InterruptConvergence  InterruptSource = "convergence"
	InterruptContextLimit InterruptSource = "context_limit"
)

// Event is the common envelope every concrete event satisfies. EventType
// returns the discriminator used for dispatch and serialization; Envelope
// returns the common fields shared by all events.
type Event interface {
	EventType() Type
	Envelope() Envelope
}

// Envelope holds the fields every event carries.
type Envelope struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e Envelope) Envelope() Envelope { return e }

// ConversationStart is emitted once by the lifecycle when a conversation begins.
type ConversationStart struct {
	Envelope
	ModelA          string    `json:"model_a"`
	ModelB          string    `json:"model_b"`
	DisplayNameA    string    `json:"display_name_a"`
	DisplayNameB    string    `json:"display_name_b"`
	InitialPrompt   string    `json:"initial_prompt"`
	MaxTurns        int       `json:"max_turns"`
	TemperatureA    *float64  `json:"temperature_a,omitempty"`
	TemperatureB    *float64  `json:"temperature_b,omitempty"`
}

func (ConversationStart) EventType() Type { return TypeConversationStart }

// SystemPrompt is emitted once per non-empty per-agent system prompt.
type SystemPrompt struct {
	Envelope
	AgentID string `json:"agent_id"`
	Prompt  string `json:"prompt"`
}

func (SystemPrompt) EventType() Type { return TypeSystemPrompt }

// TurnStart marks the beginning of one A->B exchange.
type TurnStart struct {
	Envelope
	TurnNumber int `json:"turn_number"`
}

func (TurnStart) EventType() Type { return TypeTurnStart }

// MessageRequest is emitted by the message handler to ask a provider
// wrapper to produce the next message for one agent.
type MessageRequest struct {
	Envelope
	AgentID            string    `json:"agent_id"`
	TurnNumber         int       `json:"turn_number"`
	ConversationHistory []Message `json:"conversation_history"`
	Temperature        *float64  `json:"temperature,omitempty"`
}

func (MessageRequest) EventType() Type { return TypeMessageRequest }

// MessageChunk carries one streamed fragment of a response. Optional: a
// provider wrapper only emits these for providers that stream incrementally.
type MessageChunk struct {
	Envelope
	AgentID    string `json:"agent_id"`
	Chunk      string `json:"chunk"`
	ChunkIndex int    `json:"chunk_index"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

func (MessageChunk) EventType() Type { return TypeMessageChunk }

// MessageComplete is emitted once a provider wrapper has assembled a full message.
type MessageComplete struct {
	Envelope
	AgentID          string  `json:"agent_id"`
	Message          Message `json:"message"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	DurationMs       int64   `json:"duration_ms"`
}

func (MessageComplete) EventType() Type { return TypeMessageComplete }

// TurnComplete is emitted by the turn executor once both halves of a turn
// have landed and convergence has been scored.
type TurnComplete struct {
	Envelope
	TurnNumber       int     `json:"turn_number"`
	Turn             Turn    `json:"turn"`
	ConvergenceScore float64 `json:"convergence_score"`
}

func (TurnComplete) EventType() Type { return TypeTurnComplete }

// ConversationEnd is emitted exactly once per conversation by the lifecycle.
type ConversationEnd struct {
	Envelope
	TotalTurns int           `json:"total_turns"`
	Reason     EndReason     `json:"reason"`
	DurationMs int64         `json:"duration_ms"`
}

func (ConversationEnd) EventType() Type { return TypeConversationEnd }

// APIError is emitted by a provider wrapper when the underlying provider
// call fails.
type APIError struct {
	Envelope
	AgentID      string `json:"agent_id"`
	Provider     string `json:"provider"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Retryable    bool   `json:"retryable"`
	RetryCount   int    `json:"retry_count"`
}

func (APIError) EventType() Type { return TypeAPIError }

// ProviderTimeout is emitted by the message handler when an agent's turn
// does not complete within the configured timeout.
type ProviderTimeout struct {
	Envelope
	AgentID        string  `json:"agent_id"`
	Provider       string  `json:"provider"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

func (ProviderTimeout) EventType() Type { return TypeProviderTimeout }

// RateLimitPace is emitted by the message handler whenever the rate limiter
// made a request wait more than the reporting threshold.
type RateLimitPace struct {
	Envelope
	Provider string        `json:"provider"`
	WaitTime time.Duration `json:"wait_time"`
	Reason   PaceReason    `json:"reason"`
}

func (RateLimitPace) EventType() Type { return TypeRateLimitPace }

// TokenUsage is emitted by a provider wrapper alongside MessageComplete,
// carrying the rate limiter's current usage picture for telemetry.
type TokenUsage struct {
	Envelope
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	TokensUsed         int     `json:"tokens_used"`
	PromptTokens       int     `json:"prompt_tokens"`
	CompletionTokens   int     `json:"completion_tokens"`
	RequestsInWindow   int     `json:"requests_in_window"`
	TokensInWindow     int     `json:"tokens_in_window"`
	EstimatedCostUSD   float64 `json:"estimated_cost_usd"`
}

func (TokenUsage) EventType() Type { return TypeTokenUsage }

// ContextTruncation is emitted by a provider wrapper when it drops older
// messages from the front of the history to fit a token budget.
type ContextTruncation struct {
	Envelope
	AgentID         string `json:"agent_id"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	TurnNumber      int    `json:"turn_number"`
	OriginalCount   int    `json:"original_message_count"`
	TruncatedCount  int    `json:"truncated_message_count"`
	Dropped         int    `json:"messages_dropped"`
}

func (ContextTruncation) EventType() Type { return TypeContextTruncation }

// InterruptRequest is emitted by the interrupt handler the moment an
// interrupt is observed.
type InterruptRequest struct {
	Envelope
	TurnNumber int             `json:"turn_number"`
	Source     InterruptSource `json:"source"`
}

func (InterruptRequest) EventType() Type { return TypeInterruptRequest }

// ConversationPaused is emitted while the conversation is waiting out an
// interrupt.
type ConversationPaused struct {
	Envelope
	TurnNumber   int    `json:"turn_number"`
	PausedDuring string `json:"paused_during"`
}

func (ConversationPaused) EventType() Type { return TypeConversationPaused }

// ConversationResumed is emitted if a pause is lifted rather than resulting
// in conversation end (structurally present; the default interrupt policy
// never takes this path -- see pkg/interrupt).
type ConversationResumed struct {
	Envelope
	TurnNumber   int    `json:"turn_number"`
	PausedDuring string `json:"paused_during"`
}

func (ConversationResumed) EventType() Type { return TypeConversationResumed }
