package aisdk

import (
	"encoding/json"

	"github.com/elee1766/chatmux/src/schema"
	jsonschema "github.com/swaggest/jsonschema-go"
)

// ToolDefinition describes a function the model may call. Definitions are
// supplied by the app and never modified by the engine.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// ParametersJSON returns the parameter schema, or an empty object schema when
// the tool takes no arguments.
func (d *ToolDefinition) ParametersJSON() json.RawMessage {
	raw, err := schema.Marshal(d.Parameters)
	if err != nil {
		raw, _ = schema.Marshal(nil)
	}
	return raw
}
