package executor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

// EventType represents the type of conversation event
type EventType string

const (
	// User events
	EventUserMessage EventType = "user_message"

	// Assistant events
	EventAssistantStreamChunk EventType = "assistant_stream_chunk"

	// Tool events
	EventToolCallRequest  EventType = "tool_call_request"
	EventToolCallResponse EventType = "tool_call_response"
	EventToolCallError    EventType = "tool_call_error"

	// Turn events
	EventTurnComplete EventType = "turn_complete"
	EventError        EventType = "error"
)

// ConversationEvent is the base interface for all conversation events
type ConversationEvent interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetSessionID() string
	GetTurnNumber() int
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	TurnNumber int       `json:"turn_number"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetSessionID() string    { return e.SessionID }
func (e BaseEvent) GetTurnNumber() int      { return e.TurnNumber }

// UserMessageEvent represents a user message
type UserMessageEvent struct {
	BaseEvent
	Message string `json:"message"`
	Images  int    `json:"images,omitempty"`
}

// AssistantStreamChunkEvent represents a chunk of streamed content. In
// monadic sessions chunks are pieces of the JSON envelope, not the visible
// answer, and Structured is set.
type AssistantStreamChunkEvent struct {
	BaseEvent
	Content    string `json:"content"`
	Structured bool   `json:"structured,omitempty"`
}

// ToolCallRequestEvent represents a tool call request
type ToolCallRequestEvent struct {
	BaseEvent
	ToolCall aisdk.ToolCallRequest `json:"tool_call"`
}

// ToolCallResponseEvent represents a successful tool call response
type ToolCallResponseEvent struct {
	BaseEvent
	ToolName string        `json:"tool_name"`
	ToolID   string        `json:"tool_id"`
	Content  string        `json:"content"`
	Duration time.Duration `json:"duration"`
}

// ToolCallErrorEvent represents a failed tool call
type ToolCallErrorEvent struct {
	BaseEvent
	ToolName string        `json:"tool_name"`
	ToolID   string        `json:"tool_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

// TurnCompleteEvent closes a successful turn.
type TurnCompleteEvent struct {
	BaseEvent
	Message         string             `json:"message"`
	FinishReason    aisdk.FinishReason `json:"finish_reason"`
	Hops            int                `json:"hops"`
	Monadic         bool               `json:"monadic,omitempty"`
	PreviousContext map[string]any     `json:"previous_context,omitempty"`
	Context         map[string]any     `json:"context,omitempty"`
}

// ErrorEvent represents a failed turn
type ErrorEvent struct {
	BaseEvent
	Kind    aisdk.ErrorKind `json:"kind"`
	Message string          `json:"message"`
	// Partial is the assistant text streamed before the failure
	Partial string `json:"partial,omitempty"`
}

// EventSink is the interface for handling conversation events
type EventSink interface {
	// Send delivers an event; it blocks while the sink's buffer is full
	Send(event ConversationEvent) error

	// Close closes the event sink
	Close() error
}

// EventProcessor processes conversation events
type EventProcessor interface {
	// Process handles a single event
	Process(event ConversationEvent) error

	// Close cleans up any resources
	Close() error
}

// ChannelEventSink implements EventSink using Go channels. A single goroutine
// hands every event to each processor in arrival order.
type ChannelEventSink struct {
	events     chan ConversationEvent
	processors []EventProcessor
	logger     *slog.Logger
	done       chan struct{}
}

// NewChannelEventSink creates a new channel-based event sink
func NewChannelEventSink(logger *slog.Logger, bufferSize int, processors ...EventProcessor) *ChannelEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &ChannelEventSink{
		events:     make(chan ConversationEvent, bufferSize),
		processors: processors,
		logger:     logger.With("component", "event_sink"),
		done:       make(chan struct{}),
	}

	go sink.processEvents()

	return sink
}

// Send sends an event to the sink
func (s *ChannelEventSink) Send(event ConversationEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-s.done:
		return fmt.Errorf("event sink is closed")
	}
}

// Close drains pending events, then closes every processor.
func (s *ChannelEventSink) Close() error {
	close(s.events)
	<-s.done

	var firstErr error
	for _, p := range s.processors {
		if err := p.Close(); err != nil {
			s.logger.Warn("failed to close processor", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *ChannelEventSink) processEvents() {
	defer close(s.done)

	for event := range s.events {
		for _, processor := range s.processors {
			if err := processor.Process(event); err != nil {
				s.logger.Warn("failed to process event", "type", event.GetType(), "error", err)
			}
		}
	}
}

// ProcessorFunc adapts a function to EventProcessor.
type ProcessorFunc func(event ConversationEvent) error

func (f ProcessorFunc) Process(event ConversationEvent) error { return f(event) }
func (f ProcessorFunc) Close() error                          { return nil }
