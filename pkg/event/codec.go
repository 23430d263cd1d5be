package event

import (
	"encoding/json"
	"fmt"
)

// EncodeLine serializes an event to one JSON line: its own fields plus an
// "event_type" discriminator. Any field holding an opaque provider-native
// value must already have been reduced to a plain string by the caller --
// the Event interface's concrete types never carry such values, so this
// encoder never needs to special-case them.
func EncodeLine(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event fields: %w", err)
	}

	typeBytes, err := json.Marshal(string(e.EventType()))
	if err != nil {
		return nil, err
	}
	raw["event_type"] = typeBytes

	return json.Marshal(raw)
}

// DecodeLine reconstructs a typed Event from one JSONL line. An unknown
// event_type is reported via ok=false rather than an error, so a reader can
// log and skip it without failing.
func DecodeLine(data []byte) (evt Event, ok bool, err error) {
	var head struct {
		EventType Type `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, false, fmt.Errorf("unmarshal event_type: %w", err)
	}

	var target Event
	switch head.EventType {
	case TypeConversationStart:
		target = &ConversationStart{}
	case TypeSystemPrompt:
		target = &SystemPrompt{}
	case TypeTurnStart:
		target = &TurnStart{}
	case TypeMessageRequest:
		target = &MessageRequest{}
	case TypeMessageChunk:
		target = &MessageChunk{}
	case TypeMessageComplete:
		target = &MessageComplete{}
	case TypeTurnComplete:
		target = &TurnComplete{}
	case TypeConversationEnd:
		target = &ConversationEnd{}
	case TypeAPIError:
		target = &APIError{}
	case TypeProviderTimeout:
		target = &ProviderTimeout{}
	case TypeRateLimitPace:
		target = &RateLimitPace{}
	case TypeTokenUsage:
		target = &TokenUsage{}
	case TypeContextTruncation:
		target = &ContextTruncation{}
	case TypeInterruptRequest:
		target = &InterruptRequest{}
	case TypeConversationPaused:
		target = &ConversationPaused{}
	case TypeConversationResumed:
		target = &ConversationResumed{}
	default:
		return nil, false, nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, false, fmt.Errorf("unmarshal %s: %w", head.EventType, err)
	}

	return derefEvent(target), true, nil
}

// derefEvent returns the pointed-to value so callers get value types
// consistent with the ones the bus hands to subscribers.
func derefEvent(e Event) Event {
	switch v := e.(type) {
	case *ConversationStart:
		return *v
	case *SystemPrompt:
		return *v
	case *TurnStart:
		return *v
	case *MessageRequest:
		return *v
	case *MessageChunk:
		return *v
	case *MessageComplete:
		return *v
	case *TurnComplete:
		return *v
	case *ConversationEnd:
		return *v
	case *APIError:
		return *v
	case *ProviderTimeout:
		return *v
	case *RateLimitPace:
		return *v
	case *TokenUsage:
		return *v
	case *ContextTruncation:
		return *v
	case *InterruptRequest:
		return *v
	case *ConversationPaused:
		return *v
	case *ConversationResumed:
		return *v
	default:
		return e
	}
}
