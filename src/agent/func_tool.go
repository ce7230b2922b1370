package agent

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/swaggest/jsonschema-go"
)

// FuncTool is a tool backed by a plain function over raw JSON arguments.
type FuncTool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Fn          func(ctx context.Context, args json.RawMessage) (any, error)
}

// GetName returns the tool's name
func (t *FuncTool) GetName() string {
	return t.Name
}

// GetDescription returns the tool's description
func (t *FuncTool) GetDescription() string {
	return t.Description
}

// GetParameters returns the tool's parameter schema
func (t *FuncTool) GetParameters() *jsonschema.Schema {
	return t.Parameters
}

// Execute runs the tool
func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if t.Fn == nil {
		return nil, fmt.Errorf("tool %s has no executor", t.Name)
	}
	return t.Fn(ctx, args)
}

// Ensure FuncTool implements the Tool interface
var _ Tool = (*FuncTool)(nil)
