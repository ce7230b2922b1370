package schema

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/swaggest/jsonschema-go"
)

func typed(t string, description string) *jsonschema.Schema {
	st := jsonschema.SimpleType(t)
	s := &jsonschema.Schema{Type: &jsonschema.Type{SimpleTypes: &st}}
	if description != "" {
		s.Description = &description
	}
	return s
}

// String creates a JSON schema for a string field
func String(description string) *jsonschema.Schema {
	return typed("string", description)
}

// StringEnum creates a JSON schema for a string field restricted to values
func StringEnum(description string, values []string) *jsonschema.Schema {
	s := typed("string", description)
	s.Enum = make([]interface{}, len(values))
	for i, v := range values {
		s.Enum[i] = v
	}
	return s
}

// Bool creates a JSON schema for a boolean field with default value
func Bool(description string, defaultValue bool) *jsonschema.Schema {
	s := typed("boolean", description)
	defVal := interface{}(defaultValue)
	s.Default = &defVal
	return s
}

// Int creates a JSON schema for an integer field with default value
func Int(description string, defaultValue int) *jsonschema.Schema {
	s := typed("integer", description)
	defVal := interface{}(defaultValue)
	s.Default = &defVal
	return s
}

// Object creates a JSON schema for an object with properties and required fields
func Object(properties map[string]*jsonschema.Schema, required []string) *jsonschema.Schema {
	s := typed("object", "")
	s.Properties = make(map[string]jsonschema.SchemaOrBool, len(properties))
	for name, prop := range properties {
		s.Properties[name] = jsonschema.SchemaOrBool{TypeObject: prop}
	}
	s.Required = required
	return s
}

// OpenObject creates an object schema that accepts any keys.
func OpenObject(description string) *jsonschema.Schema {
	s := typed("object", description)
	s.AdditionalProperties = &jsonschema.SchemaOrBool{TypeBoolean: boolPtr(true)}
	return s
}

// Parse decodes a JSON schema document.
func Parse(raw []byte) (*jsonschema.Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &s, nil
}

// FromValue converts a decoded YAML or JSON value into a schema.
func FromValue(v any) (*jsonschema.Schema, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return Parse(raw)
}

// Marshal encodes s, returning an empty object schema for nil.
func Marshal(s *jsonschema.Schema) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return b, nil
}

func boolPtr(b bool) *bool {
	return &b
}
