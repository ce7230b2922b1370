package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/tidwall/gjson"
)

// partialBlock tracks a content block being assembled from streaming events.
type partialBlock struct {
	typ   string
	id    string
	name  string
	input []byte
}

// translator maps Messages API stream events to protocol events. Tool calls
// are emitted when their block stops; input of the envelope tool is streamed
// as text.
type translator struct {
	blocks     map[int64]*partialBlock
	stopReason string
	toolCalls  int
}

func newTranslator() *translator {
	return &translator{blocks: map[int64]*partialBlock{}}
}

func (t *translator) Translate(unit []byte) ([]aisdk.Event, error) {
	ev := stream.ParseEvent(unit)
	if ev.Data == "" {
		return nil, nil
	}
	if !gjson.Valid(ev.Data) {
		return nil, fmt.Errorf("%w: %s event is not valid JSON", aisdk.ErrDecode, ev.Name)
	}
	data := gjson.Parse(ev.Data)
	name := ev.Name
	if name == "" {
		name = data.Get("type").String()
	}

	switch name {
	case "content_block_start":
		block := data.Get("content_block")
		pb := &partialBlock{
			typ:  block.Get("type").String(),
			id:   block.Get("id").String(),
			name: block.Get("name").String(),
		}
		t.blocks[data.Get("index").Int()] = pb
		if pb.typ == "text" && block.Get("text").Str != "" {
			return []aisdk.Event{aisdk.Fragment(block.Get("text").Str)}, nil
		}
		return nil, nil

	case "content_block_delta":
		pb, ok := t.blocks[data.Get("index").Int()]
		if !ok {
			return nil, fmt.Errorf("%w: delta for unknown block %d", aisdk.ErrDecode, data.Get("index").Int())
		}
		delta := data.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			if text := delta.Get("text").Str; text != "" {
				return []aisdk.Event{aisdk.Fragment(text)}, nil
			}
		case "input_json_delta":
			partial := delta.Get("partial_json").Str
			pb.input = append(pb.input, partial...)
			if pb.name == envelopeTool && partial != "" {
				return []aisdk.Event{aisdk.Fragment(partial)}, nil
			}
		}
		return nil, nil

	case "content_block_stop":
		idx := data.Get("index").Int()
		pb, ok := t.blocks[idx]
		if !ok {
			return nil, nil
		}
		delete(t.blocks, idx)
		if pb.typ != "tool_use" || pb.name == envelopeTool {
			return nil, nil
		}
		t.toolCalls++
		var args json.RawMessage
		if len(pb.input) > 0 {
			args = json.RawMessage(pb.input)
		}
		return []aisdk.Event{aisdk.ToolCallRequested(aisdk.ToolCallRequest{ID: pb.id, Name: pb.name, Arguments: args})}, nil

	case "message_delta":
		if reason := data.Get("delta.stop_reason").Str; reason != "" {
			t.stopReason = reason
		}
		return nil, nil

	case "message_stop":
		return []aisdk.Event{aisdk.Done(t.finishReason())}, nil

	case "error":
		return []aisdk.Event{aisdk.ErrorEvent(aisdk.NewError(aisdk.KindHTTP, streamError(data.Get("error"))))}, nil
	}

	// message_start, ping and event types added later
	return nil, nil
}

func (t *translator) finishReason() aisdk.FinishReason {
	switch t.stopReason {
	case "max_tokens":
		return aisdk.FinishLength
	case "tool_use":
		if t.toolCalls == 0 {
			// only the envelope tool was used
			return aisdk.FinishStop
		}
		return aisdk.FinishToolCalls
	case "":
		if t.toolCalls > 0 {
			return aisdk.FinishToolCalls
		}
		return aisdk.FinishNone
	default:
		return aisdk.FinishStop
	}
}

// streamError maps error types sent mid-stream onto their HTTP statuses so
// the retry policy treats them like the equivalent response.
func streamError(obj gjson.Result) *aisdk.APIError {
	apiErr := &aisdk.APIError{
		Type:    obj.Get("type").String(),
		Message: obj.Get("message").String(),
	}
	switch apiErr.Type {
	case "overloaded_error":
		apiErr.StatusCode = 529
	case "api_error":
		apiErr.StatusCode = http.StatusInternalServerError
	case "rate_limit_error":
		apiErr.StatusCode = http.StatusTooManyRequests
	case "invalid_request_error":
		apiErr.StatusCode = http.StatusBadRequest
	}
	if apiErr.Message == "" {
		apiErr.Message = obj.Raw
	}
	return apiErr
}
