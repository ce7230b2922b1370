package aisdk

import (
	"encoding/json"
	"strings"
)

// EventType represents the kind of a protocol event
type EventType string

const (
	EventFragment EventType = "fragment"
	EventToolCall EventType = "tool_call"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is a normalized protocol event decoded from a vendor stream. Exactly
// one Done or Error event terminates a decode pass.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCallRequest
	FinishReason FinishReason
	Err          *Error
}

// Fragment creates a text fragment event.
func Fragment(text string) Event {
	return Event{Type: EventFragment, Text: text}
}

// ToolCallRequested creates a tool call event.
func ToolCallRequested(call ToolCallRequest) Event {
	return Event{Type: EventToolCall, ToolCall: &call}
}

// Done creates a terminal event with the given finish reason.
func Done(reason FinishReason) Event {
	return Event{Type: EventDone, FinishReason: reason}
}

// ErrorEvent creates a terminal error event.
func ErrorEvent(err *Error) Event {
	return Event{Type: EventError, Err: err}
}

// IsTerminal returns true for Done and Error events.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// MarshalJSON renders the UI-facing shape {type: ..., ...}.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": e.Type}
	switch e.Type {
	case EventFragment:
		out["text"] = e.Text
	case EventToolCall:
		out["tool_call"] = e.ToolCall
	case EventDone:
		if e.FinishReason == FinishNone {
			out["finish_reason"] = nil
		} else {
			out["finish_reason"] = e.FinishReason
		}
	case EventError:
		out["error"] = e.Err
	}
	return json.Marshal(out)
}

// EventHandler receives events in strict arrival order.
type EventHandler func(Event)

// Emit calls h if it is set.
func (h EventHandler) Emit(e Event) {
	if h != nil {
		h(e)
	}
}

// EventsToChannel returns a handler that forwards into a bounded channel, and
// the channel itself. The handler blocks when the channel is full, giving the
// producer backpressure. The caller closes the channel via the returned func
// once no more events will be emitted.
func EventsToChannel(size int) (EventHandler, <-chan Event, func()) {
	ch := make(chan Event, size)
	return func(e Event) { ch <- e }, ch, func() { close(ch) }
}

// CollectText concatenates the fragments in events.
func CollectText(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Type == EventFragment {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}
