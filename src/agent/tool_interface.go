// Package agent holds the tool registry the model may call into and the
// dispatcher that runs requested calls.
package agent

import (
	"context"
	"encoding/json"

	"github.com/elee1766/chatmux/src/aisdk"
	jsonschema "github.com/swaggest/jsonschema-go"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// GetName returns the tool's name
	GetName() string

	// GetDescription returns the tool's description
	GetDescription() string

	// GetParameters returns the JSON schema for the tool's parameters
	GetParameters() *jsonschema.Schema

	// Execute runs the tool with a JSON object of arguments. The result is
	// either a string or a JSON-serializable value.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Registry resolves tool names to tools.
type Registry interface {
	Lookup(name string) (Tool, bool)
}

// Definition converts a tool to the definition sent to vendors.
func Definition(t Tool) *aisdk.ToolDefinition {
	return &aisdk.ToolDefinition{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters:  t.GetParameters(),
	}
}
