package executor

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

// EventEmitter helps emit events with common fields
type EventEmitter struct {
	sink       EventSink
	sessionID  string
	turnNumber int
	structured bool

	partial strings.Builder
}

// NewEventEmitter creates a new event emitter. structured marks a monadic
// session whose stream is a JSON envelope.
func NewEventEmitter(sink EventSink, sessionID string, turnNumber int, structured bool) *EventEmitter {
	return &EventEmitter{
		sink:       sink,
		sessionID:  sessionID,
		turnNumber: turnNumber,
		structured: structured,
	}
}

func (e *EventEmitter) createBaseEvent(eventType EventType) BaseEvent {
	if e == nil {
		return BaseEvent{Type: eventType}
	}
	return BaseEvent{
		Type:       eventType,
		Timestamp:  time.Now(),
		SessionID:  e.sessionID,
		TurnNumber: e.turnNumber,
	}
}

func (e *EventEmitter) send(event ConversationEvent) error {
	if e == nil || e.sink == nil {
		return nil
	}
	return e.sink.Send(event)
}

// EmitUserMessage emits a user message event
func (e *EventEmitter) EmitUserMessage(message string, images int) error {
	return e.send(&UserMessageEvent{
		BaseEvent: e.createBaseEvent(EventUserMessage),
		Message:   message,
		Images:    images,
	})
}

// EmitAssistantStreamChunk emits a chunk of streamed content
func (e *EventEmitter) EmitAssistantStreamChunk(content string) error {
	if e == nil {
		return nil
	}
	return e.send(&AssistantStreamChunkEvent{
		BaseEvent:  e.createBaseEvent(EventAssistantStreamChunk),
		Content:    content,
		Structured: e.structured,
	})
}

// EmitToolCallRequest emits a tool call request
func (e *EventEmitter) EmitToolCallRequest(call aisdk.ToolCallRequest) error {
	return e.send(&ToolCallRequestEvent{
		BaseEvent: e.createBaseEvent(EventToolCallRequest),
		ToolCall:  call,
	})
}

// EmitToolCallResponse emits a successful tool call response
func (e *EventEmitter) EmitToolCallResponse(toolName, toolID, content string, duration time.Duration) error {
	return e.send(&ToolCallResponseEvent{
		BaseEvent: e.createBaseEvent(EventToolCallResponse),
		ToolName:  toolName,
		ToolID:    toolID,
		Content:   content,
		Duration:  duration,
	})
}

// EmitToolCallError emits a failed tool call
func (e *EventEmitter) EmitToolCallError(toolName, toolID string, err error, duration time.Duration) error {
	return e.send(&ToolCallErrorEvent{
		BaseEvent: e.createBaseEvent(EventToolCallError),
		ToolName:  toolName,
		ToolID:    toolID,
		Error:     err.Error(),
		Duration:  duration,
	})
}

// EmitError emits an error event
func (e *EventEmitter) EmitError(err *aisdk.Error, partial string) error {
	return e.send(&ErrorEvent{
		BaseEvent: e.createBaseEvent(EventError),
		Kind:      err.Kind,
		Message:   err.Message,
		Partial:   partial,
	})
}

// EmitTurnComplete emits a turn completion event
func (e *EventEmitter) EmitTurnComplete(message string, reason aisdk.FinishReason, hops int, previous, current map[string]any) error {
	if e == nil {
		return nil
	}
	return e.send(&TurnCompleteEvent{
		BaseEvent:       e.createBaseEvent(EventTurnComplete),
		Message:         message,
		FinishReason:    reason,
		Hops:            hops,
		Monadic:         e.structured,
		PreviousContext: maps.Clone(previous),
		Context:         maps.Clone(current),
	})
}

// Handler translates protocol events into conversation events. Done is
// dropped; the service emits TurnComplete once the turn is persisted.
func (e *EventEmitter) Handler() aisdk.EventHandler {
	return func(ev aisdk.Event) {
		if e == nil {
			return
		}
		switch ev.Type {
		case aisdk.EventFragment:
			e.partial.WriteString(ev.Text)
			e.EmitAssistantStreamChunk(ev.Text)
		case aisdk.EventToolCall:
			e.partial.Reset()
			e.EmitToolCallRequest(*ev.ToolCall)
		case aisdk.EventError:
			e.EmitError(ev.Err, e.partial.String())
		}
	}
}

type emitterKey struct{}

func withEmitter(ctx context.Context, e *EventEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

func emitterFrom(ctx context.Context) *EventEmitter {
	e, _ := ctx.Value(emitterKey{}).(*EventEmitter)
	return e
}
