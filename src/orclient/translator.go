package orclient

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const doneMarker = "[DONE]"

// pendingCall collects a tool call whose name and arguments arrive in pieces
// across delta chunks, keyed by the call index.
type pendingCall struct {
	id   string
	name string
	args []byte
}

// translator turns Chat Completions stream chunks into events. Tool calls are
// held until the choice reports a finish reason.
type translator struct {
	calls map[int64]*pendingCall
}

func newTranslator() *translator {
	return &translator{calls: map[int64]*pendingCall{}}
}

func (t *translator) Translate(unit []byte) ([]aisdk.Event, error) {
	ev := stream.ParseEvent(unit)
	if ev.Data == "" {
		return nil, nil
	}
	if ev.Data == doneMarker {
		return t.finish(aisdk.FinishNone), nil
	}

	if !gjson.Valid(ev.Data) {
		return nil, fmt.Errorf("%w: chunk is not valid JSON", aisdk.ErrDecode)
	}
	chunk := gjson.Parse(ev.Data)

	if errObj := chunk.Get("error"); errObj.Exists() {
		return []aisdk.Event{aisdk.ErrorEvent(aisdk.NewError(aisdk.KindHTTP, streamError(errObj)))}, nil
	}

	choice := chunk.Get("choices.0")
	if !choice.Exists() {
		// usage-only chunks carry no choices
		return nil, nil
	}

	var out []aisdk.Event
	if content := choice.Get("delta.content"); content.Type == gjson.String && content.Str != "" {
		out = append(out, aisdk.Fragment(content.Str))
	}
	for _, tc := range choice.Get("delta.tool_calls").Array() {
		t.accumulate(tc)
	}
	if reason := choice.Get("finish_reason"); reason.Type == gjson.String && reason.Str != "" {
		out = append(out, t.finish(mapFinishReason(reason.Str))...)
	}
	return out, nil
}

func (t *translator) accumulate(tc gjson.Result) {
	idx := tc.Get("index").Int()
	call, ok := t.calls[idx]
	if !ok {
		call = &pendingCall{}
		t.calls[idx] = call
	}
	if id := tc.Get("id").Str; id != "" {
		call.id = id
	}
	if name := tc.Get("function.name").Str; name != "" {
		call.name += name
	}
	call.args = append(call.args, tc.Get("function.arguments").Str...)
}

// finish flushes pending tool calls in index order and ends the pass.
func (t *translator) finish(reason aisdk.FinishReason) []aisdk.Event {
	indexes := make([]int64, 0, len(t.calls))
	for idx := range t.calls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	out := make([]aisdk.Event, 0, len(indexes)+1)
	for _, idx := range indexes {
		call := t.calls[idx]
		if call.id == "" {
			call.id = "call_" + uuid.NewString()
		}
		var args json.RawMessage
		if len(call.args) > 0 {
			args = json.RawMessage(call.args)
		}
		out = append(out, aisdk.ToolCallRequested(aisdk.ToolCallRequest{ID: call.id, Name: call.name, Arguments: args}))
	}
	t.calls = map[int64]*pendingCall{}

	if reason == aisdk.FinishNone && len(indexes) > 0 {
		reason = aisdk.FinishToolCalls
	}
	return append(out, aisdk.Done(reason))
}

func mapFinishReason(s string) aisdk.FinishReason {
	switch s {
	case "length":
		return aisdk.FinishLength
	case "tool_calls", "function_call":
		return aisdk.FinishToolCalls
	default:
		return aisdk.FinishStop
	}
}

// streamError converts an error object sent mid-stream. OpenRouter puts the
// upstream HTTP status in a numeric code.
func streamError(obj gjson.Result) *aisdk.APIError {
	apiErr := &aisdk.APIError{
		Message: obj.Get("message").String(),
		Type:    obj.Get("type").String(),
	}
	if apiErr.Message == "" {
		apiErr.Message = obj.Raw
	}
	code := obj.Get("code")
	switch code.Type {
	case gjson.Number:
		apiErr.StatusCode = int(code.Int())
	case gjson.String:
		apiErr.Code = code.Str
	}
	return apiErr
}
