package executor

import (
	"context"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
)

// Callbacks holds optional hooks around tool execution. A non-nil error from
// OnToolCall vetoes the call; the model sees the error as the tool result.
type Callbacks struct {
	// OnToolCall is called before executing a tool
	OnToolCall func(call aisdk.ToolCallRequest) error

	// OnToolResult is called after tool execution
	OnToolResult func(call aisdk.ToolCallRequest, result any, err error)
}

// ToolCall calls the OnToolCall callback if it's set
func (c *Callbacks) ToolCall(call aisdk.ToolCallRequest) error {
	if c == nil || c.OnToolCall == nil {
		return nil
	}
	return c.OnToolCall(call)
}

// ToolResult calls the OnToolResult callback if it's set
func (c *Callbacks) ToolResult(call aisdk.ToolCallRequest, result any, err error) {
	if c == nil || c.OnToolResult == nil {
		return
	}
	c.OnToolResult(call, result, err)
}

// observedTools wraps an app's tool registry so every execution reports to
// the turn's emitter and the session callbacks.
type observedTools struct {
	*agent.Toolbox
	callbacks *Callbacks
}

// Chain runs the toolbox middleware inside the observer.
func (o observedTools) Chain(exec agent.ToolExecutor) agent.ToolExecutor {
	inner := o.Toolbox.Chain(exec)
	return func(ctx context.Context, call aisdk.ToolCallRequest, tool agent.Tool) (any, error) {
		emitter := emitterFrom(ctx)
		start := time.Now()

		if err := o.callbacks.ToolCall(call); err != nil {
			emitter.EmitToolCallError(call.Name, call.ID, err, 0)
			return nil, err
		}

		out, err := inner(ctx, call, tool)
		o.callbacks.ToolResult(call, out, err)
		if err != nil {
			emitter.EmitToolCallError(call.Name, call.ID, err, time.Since(start))
			return out, err
		}
		emitter.EmitToolCallResponse(call.Name, call.ID, renderPreview(out), time.Since(start))
		return out, nil
	}
}
