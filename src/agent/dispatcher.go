package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Dispatcher runs tool calls requested by the model. Every failure, including
// an unknown tool, bad arguments or a panic, comes back as an error result the
// model can read; Dispatch never fails.
type Dispatcher struct {
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher that logs through logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Logger: logger.With("component", "dispatcher")}
}

// Dispatch resolves call.Name in registry, invokes the tool and renders the
// outcome as a ToolResult.
func (d *Dispatcher) Dispatch(ctx context.Context, call aisdk.ToolCallRequest, registry Registry) aisdk.ToolResult {
	start := time.Now()
	result := aisdk.ToolResult{CallID: call.ID, Name: call.Name}
	finish := func(content string, isErr bool) aisdk.ToolResult {
		result.Content = content
		result.IsError = isErr
		result.Duration = time.Since(start)
		return result
	}

	if registry == nil {
		return finish(errorContent("tool not found: "+call.Name), true)
	}
	tool, ok := registry.Lookup(call.Name)
	if !ok {
		d.logger().Warn("model requested unknown tool", "tool", call.Name, "call_id", call.ID)
		return finish(errorContent("tool not found: "+call.Name), true)
	}

	args := call.ArgumentsOrEmpty()
	if !gjson.ValidBytes(args) || !gjson.ParseBytes(args).IsObject() {
		return finish(errorContent("invalid arguments: expected a JSON object"), true)
	}
	call.Arguments = args

	exec := ToolExecutor(invoke)
	if chain, ok := registry.(interface {
		Chain(ToolExecutor) ToolExecutor
	}); ok {
		exec = chain.Chain(exec)
	}

	out, err := d.safeExecute(ctx, exec, call, tool)
	if err != nil {
		return finish(errorContent(err.Error()), true)
	}
	content, err := render(out)
	if err != nil {
		return finish(errorContent(fmt.Sprintf("failed to marshal result: %v", err)), true)
	}
	return finish(content, false)
}

// DispatchAll runs calls in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []aisdk.ToolCallRequest, registry Registry) []aisdk.ToolResult {
	out := make([]aisdk.ToolResult, 0, len(calls))
	for _, call := range calls {
		out = append(out, d.Dispatch(ctx, call, registry))
	}
	return out
}

func (d *Dispatcher) safeExecute(ctx context.Context, exec ToolExecutor, call aisdk.ToolCallRequest, tool Tool) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger().Error("tool panicked", "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			out = nil
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return exec(ctx, call, tool)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func invoke(ctx context.Context, call aisdk.ToolCallRequest, tool Tool) (any, error) {
	return tool.Execute(ctx, call.Arguments)
}

func render(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.RawMessage:
		return string(val), nil
	case []byte:
		return string(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func errorContent(msg string) string {
	out, err := sjson.Set(`{}`, "error", msg)
	if err != nil {
		return `{"error":"internal error"}`
	}
	return out
}
