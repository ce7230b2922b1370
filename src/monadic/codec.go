// Package monadic carries structured state across turns inside model text.
//
// An envelope is the JSON object {"message": "...", "context": {...}}. The
// session keeps the latest context; each outbound user turn is wrapped with it
// and each terminal assistant turn is unwrapped to recover the new one.
package monadic

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/schema"
	"github.com/elee1766/chatmux/src/stream"
	jsonschema "github.com/swaggest/jsonschema-go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Mode selects how strictly assistant text is parsed.
type Mode int

const (
	// FreeText accepts an envelope embedded anywhere in the text and falls back
	// to treating the whole text as the message.
	FreeText Mode = iota
	// Strict requires the whole response to be an envelope, as produced by
	// vendors with schema constrained output.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "free_text"
}

// Envelope is the message plus the structured context threaded across turns.
type Envelope struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// Codec wraps and unwraps envelopes.
type Codec struct {
	Mode Mode
}

// New returns a codec in strict mode when strict is set.
func New(strict bool) Codec {
	if strict {
		return Codec{Mode: Strict}
	}
	return Codec{Mode: FreeText}
}

// Wrap serializes e. A nil context is written as an empty object.
func (c Codec) Wrap(e Envelope) (string, error) {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	rawCtx, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}
	out, err := sjson.Set("{}", "message", e.Message)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	out, err = sjson.SetRaw(out, "context", string(rawCtx))
	if err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}
	return out, nil
}

// Prompt wraps an outbound user message with the stored context so the model
// sees the current state.
func (c Codec) Prompt(userText string, ctx map[string]any) (string, error) {
	return c.Wrap(Envelope{Message: userText, Context: ctx})
}

// Unwrap recovers the envelope from assistant text.
//
// In FreeText mode text that holds no envelope is returned as the message with
// an empty context and no error. In Strict mode such text fails with
// aisdk.ErrInvalidStructuredOutput.
func (c Codec) Unwrap(raw string) (Envelope, error) {
	env, _, err := c.Recover(raw)
	return env, err
}

// Recover is Unwrap that also reports whether an envelope was present. A
// FreeText reply without one yields found == false, and the caller keeps
// whatever context it already holds.
func (c Codec) Recover(raw string) (Envelope, bool, error) {
	if c.Mode == Strict {
		body := unfence(strings.TrimSpace(raw))
		env, ok := parse(body)
		if !ok {
			return Envelope{}, false, fmt.Errorf("%w: response is not a {message, context} object", aisdk.ErrInvalidStructuredOutput)
		}
		return env, true, nil
	}

	if env, ok := find(raw); ok {
		return env, true, nil
	}
	return Envelope{Message: raw, Context: map[string]any{}}, false, nil
}

// Transform applies fn to a copy of the envelope's context and serializes the
// result.
func (c Codec) Transform(e Envelope, fn func(map[string]any) (map[string]any, error)) (string, error) {
	ctx := maps.Clone(e.Context)
	if ctx == nil {
		ctx = map[string]any{}
	}
	next, err := fn(ctx)
	if err != nil {
		return "", fmt.Errorf("context transform failed: %w", err)
	}
	return c.Wrap(Envelope{Message: e.Message, Context: next})
}

// Schema builds the response schema for strict mode. contextSchema constrains
// the context object; nil accepts any object.
func Schema(contextSchema *jsonschema.Schema) *jsonschema.Schema {
	if contextSchema == nil {
		contextSchema = schema.OpenObject("Structured state carried to the next turn")
	}
	return schema.Object(map[string]*jsonschema.Schema{
		"message": schema.String("Text shown to the user"),
		"context": contextSchema,
	}, []string{"message", "context"})
}

// SchemaJSON is Schema serialized for a vendor request.
func SchemaJSON(contextSchema *jsonschema.Schema) (json.RawMessage, error) {
	return schema.Marshal(Schema(contextSchema))
}

// Instructions explains the envelope format to models without constrained
// output.
const Instructions = `Every user message arrives as a JSON object {"message": string, "context": object}. ` +
	`Reply with exactly one JSON object of the same shape: put your answer for the user in "message" ` +
	`and the complete updated state in "context". Do not write anything outside the object.`

func parse(body string) (Envelope, bool) {
	if !gjson.Valid(body) {
		return Envelope{}, false
	}
	res := gjson.Parse(body)
	if !res.IsObject() {
		return Envelope{}, false
	}
	msg := res.Get("message")
	ctx := res.Get("context")
	if msg.Type != gjson.String || !ctx.IsObject() {
		return Envelope{}, false
	}
	env := Envelope{Message: msg.String(), Context: map[string]any{}}
	if err := json.Unmarshal([]byte(ctx.Raw), &env.Context); err != nil {
		return Envelope{}, false
	}
	return env, true
}

// maxObjectScans bounds how many '{' positions find tries, so text full of
// unbalanced braces stays linear.
const maxObjectScans = 32

// find looks for an envelope in free text: the whole text, a fenced code
// block, then balanced objects in order. The first match wins.
func find(raw string) (Envelope, bool) {
	trimmed := strings.TrimSpace(raw)
	if env, ok := parse(trimmed); ok {
		return env, true
	}
	if body := unfence(trimmed); body != trimmed {
		if env, ok := parse(body); ok {
			return env, true
		}
	}
	if start := strings.Index(raw, "```"); start >= 0 {
		if body := unfence(strings.TrimSpace(raw[start:])); !strings.HasPrefix(body, "```") {
			if env, ok := parse(body); ok {
				return env, true
			}
		}
	}

	buf := []byte(raw)
	scans := 0
	for i := 0; i < len(buf) && scans < maxObjectScans; i++ {
		if buf[i] != '{' {
			continue
		}
		scans++
		unit, _, err := stream.JSONObjects{}.TryParseUnit(buf[i:], true)
		if err != nil || unit == nil {
			continue
		}
		if env, ok := parse(string(unit)); ok {
			return env, true
		}
	}
	return Envelope{}, false
}

// unfence strips a surrounding ``` or ```json fence.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	body = body[nl+1:]
	end := strings.Index(body, "```")
	if end < 0 {
		return s
	}
	return strings.TrimSpace(body[:end])
}
