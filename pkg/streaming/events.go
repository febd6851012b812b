// Package streaming decodes the Claude-web SSE byte stream into Anthropic-shaped
// streaming events and rewrites that event stream around client-side tool use.
package streaming

import "encoding/json"

// EventType enumerates the Anthropic streaming event kinds this proxy models.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
	EventPing              EventType = "ping"
	EventUnknown           EventType = "unknown"
)

// Event is a typed streaming event. Raw carries the full decoded JSON object
// (post private-event normalization) so the outer encoder can re-serialize it
// byte-faithfully; the typed accessors below exist for the interceptor's own
// state machine, not as a replacement for Raw.
type Event struct {
	Type EventType
	Raw  map[string]any

	// UnknownType carries the original wire "type" string when Type == EventUnknown.
	UnknownType string
}

// Index returns the event's "index" field, if present.
func (e *Event) Index() (int, bool) {
	v, ok := e.Raw["index"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// MessageID returns Raw["message"]["id"], if present (message_start only).
func (e *Event) MessageID() (string, bool) {
	m, ok := e.Raw["message"].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok
}

// ContentBlockType returns Raw["content_block"]["type"], if present.
func (e *Event) ContentBlockType() (string, bool) {
	cb, ok := e.Raw["content_block"].(map[string]any)
	if !ok {
		return "", false
	}
	t, ok := cb["type"].(string)
	return t, ok
}

// ContentBlockField returns a string field of Raw["content_block"].
func (e *Event) ContentBlockField(field string) (string, bool) {
	cb, ok := e.Raw["content_block"].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := cb[field].(string)
	return v, ok
}

// MarshalJSON re-serializes the raw event object, not the typed wrapper.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Raw)
}

// NewMessageDelta builds a synthetic message_delta event with the given stop reason.
func NewMessageDelta(stopReason string) *Event {
	return &Event{
		Type: EventMessageDelta,
		Raw: map[string]any{
			"type": string(EventMessageDelta),
			"delta": map[string]any{
				"stop_reason": stopReason,
			},
		},
	}
}

// NewMessageStop builds a synthetic message_stop event.
func NewMessageStop() *Event {
	return &Event{
		Type: EventMessageStop,
		Raw:  map[string]any{"type": string(EventMessageStop)},
	}
}

func eventTypeFromString(s string) EventType {
	switch EventType(s) {
	case EventMessageStart, EventContentBlockStart, EventContentBlockDelta,
		EventContentBlockStop, EventMessageDelta, EventMessageStop, EventPing:
		return EventType(s)
	default:
		return EventUnknown
	}
}
