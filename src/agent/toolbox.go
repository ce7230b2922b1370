package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

// ToolExecutor is a function type for tool execution
type ToolExecutor func(ctx context.Context, call aisdk.ToolCallRequest, tool Tool) (any, error)

// ToolMiddleware is a function that wraps a ToolExecutor to add functionality.
type ToolMiddleware func(next ToolExecutor) ToolExecutor

// Toolbox is a thread-safe registry of tools shared by every session of an
// app.
type Toolbox struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	middleware []ToolMiddleware
}

// NewToolbox creates a new, empty toolbox.
func NewToolbox() *Toolbox {
	return &Toolbox{
		tools: make(map[string]Tool),
	}
}

// RegisterTool registers a tool.
func (tb *Toolbox) RegisterTool(tool Tool) error {
	if tool.GetName() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if _, exists := tb.tools[tool.GetName()]; exists {
		return fmt.Errorf("tool %s is already registered", tool.GetName())
	}
	tb.tools[tool.GetName()] = tool
	return nil
}

// RegisterMiddleware registers middleware that will be applied to all tool executions.
// Middleware is applied in the order it's registered (first registered = outermost layer).
func (tb *Toolbox) RegisterMiddleware(middleware ToolMiddleware) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.middleware = append(tb.middleware, middleware)
}

// Lookup returns a tool by name.
func (tb *Toolbox) Lookup(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	tool, exists := tb.tools[name]
	return tool, exists
}

// Names returns the registered tool names in sorted order.
func (tb *Toolbox) Names() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make([]string, 0, len(tb.tools))
	for name := range tb.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the vendor-facing definitions of all tools, sorted by
// name.
func (tb *Toolbox) Definitions() []*aisdk.ToolDefinition {
	names := tb.Names()
	out := make([]*aisdk.ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := tb.Lookup(name); ok {
			out = append(out, Definition(tool))
		}
	}
	return out
}

// Subset returns a toolbox holding only the named tools and sharing this
// toolbox's middleware.
func (tb *Toolbox) Subset(names ...string) (*Toolbox, error) {
	out := NewToolbox()
	tb.mu.RLock()
	out.middleware = append(out.middleware, tb.middleware...)
	tb.mu.RUnlock()

	for _, name := range names {
		tool, ok := tb.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("tool %s not found", name)
		}
		if err := out.RegisterTool(tool); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Chain wraps exec with the registered middleware.
func (tb *Toolbox) Chain(exec ToolExecutor) ToolExecutor {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	for i := len(tb.middleware) - 1; i >= 0; i-- {
		exec = tb.middleware[i](exec)
	}
	return exec
}

// Common middleware implementations

// LoggingMiddleware logs tool execution details.
func LoggingMiddleware(logger *slog.Logger) ToolMiddleware {
	return func(next ToolExecutor) ToolExecutor {
		return func(ctx context.Context, call aisdk.ToolCallRequest, tool Tool) (any, error) {
			logger.Debug("executing tool", "tool", call.Name, "call_id", call.ID, "params", string(call.Arguments))
			start := time.Now()
			result, err := next(ctx, call, tool)
			if err != nil {
				logger.Info("tool execution failed", "tool", call.Name, "error", err, "duration", time.Since(start))
			} else {
				logger.Debug("tool execution completed", "tool", call.Name, "duration", time.Since(start))
			}
			return result, err
		}
	}
}

// TimeoutMiddleware bounds every tool execution.
func TimeoutMiddleware(timeout time.Duration) ToolMiddleware {
	return func(next ToolExecutor) ToolExecutor {
		return func(ctx context.Context, call aisdk.ToolCallRequest, tool Tool) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, call, tool)
		}
	}
}
