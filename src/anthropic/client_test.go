package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func readBody(t *testing.T, r *http.Request) gjson.Result {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(raw))
	return gjson.ParseBytes(raw)
}

func TestNewRequest(t *testing.T) {
	c := NewClient(Config{APIKey: "ak", BaseURL: "https://example.com/"})
	temp := 0.5
	req := &aisdk.Request{
		Params: aisdk.Parameters{
			Model:       "claude-sonnet-4-5",
			Temperature: &temp,
			Tools:       []*aisdk.ToolDefinition{{Name: "current_time", Description: "now"}},
		},
		Stream: true,
		Window: []aisdk.Turn{
			{Role: aisdk.RoleSystem, Text: "You are helpful."},
			{Role: aisdk.RoleUser, Text: "what time is it, and what is this?", Images: []aisdk.ImageRef{
				{MimeType: "image/jpeg", Data: "/9j/"},
				{URL: "https://example.com/cat.png"},
			}},
			{Role: aisdk.RoleAssistant, Text: "Checking.", ToolCalls: []aisdk.ToolCallRequest{
				{ID: "toolu_1", Name: "current_time"},
				{ID: "toolu_2", Name: "current_time", Arguments: json.RawMessage(`{"zone":"UTC"}`)},
			}},
			{Role: aisdk.RoleTool, ToolCallID: "toolu_1", Name: "current_time", Text: "12:00"},
			{Role: aisdk.RoleTool, ToolCallID: "toolu_2", Name: "current_time", Text: "17:00"},
		},
	}

	httpReq, err := c.NewRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v1/messages", httpReq.URL.String())
	assert.Equal(t, "ak", httpReq.Header.Get("x-api-key"))
	assert.Equal(t, defaultVersion, httpReq.Header.Get("anthropic-version"))

	body := readBody(t, httpReq)
	assert.Equal(t, "You are helpful.", body.Get("system").String())
	assert.Equal(t, int64(defaultMaxTokens), body.Get("max_tokens").Int())
	assert.Equal(t, 0.5, body.Get("temperature").Float())
	assert.True(t, body.Get("stream").Bool())
	assert.False(t, body.Get("tool_choice").Exists())

	msgs := body.Get("messages").Array()
	require.Len(t, msgs, 3)

	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "base64", msgs[0].Get("content.0.source.type").String())
	assert.Equal(t, "image/jpeg", msgs[0].Get("content.0.source.media_type").String())
	assert.Equal(t, "url", msgs[0].Get("content.1.source.type").String())
	assert.Equal(t, "text", msgs[0].Get("content.2.type").String())

	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "Checking.", msgs[1].Get("content.0.text").String())
	assert.Equal(t, "tool_use", msgs[1].Get("content.1.type").String())
	assert.JSONEq(t, `{}`, msgs[1].Get("content.1.input").Raw)
	assert.JSONEq(t, `{"zone":"UTC"}`, msgs[1].Get("content.2.input").Raw)

	// both tool results merge into one user message
	assert.Equal(t, "user", msgs[2].Get("role").String())
	results := msgs[2].Get("content").Array()
	require.Len(t, results, 2)
	assert.Equal(t, "tool_result", results[0].Get("type").String())
	assert.Equal(t, "toolu_1", results[0].Get("tool_use_id").String())
	assert.Equal(t, "17:00", results[1].Get("content").String())

	assert.Equal(t, "current_time", body.Get("tools.0.name").String())
	assert.Equal(t, "object", body.Get("tools.0.input_schema.type").String())
}

func TestNewRequestStrict(t *testing.T) {
	c := NewClient(Config{MaxTokens: 100})
	schema := json.RawMessage(`{"type":"object","required":["message","context"]}`)

	httpReq, err := c.NewRequest(context.Background(), &aisdk.Request{
		Params:         aisdk.Parameters{Model: "m"},
		Window:         []aisdk.Turn{{Role: aisdk.RoleSystem}, {Role: aisdk.RoleUser, Text: "hi"}},
		ResponseSchema: schema,
	})
	require.NoError(t, err)
	body := readBody(t, httpReq)
	assert.False(t, body.Get("system").Exists())
	assert.Equal(t, int64(100), body.Get("max_tokens").Int())
	assert.Equal(t, envelopeTool, body.Get("tools.0.name").String())
	assert.JSONEq(t, string(schema), body.Get("tools.0.input_schema").Raw)
	assert.Equal(t, "tool", body.Get("tool_choice.type").String())
	assert.Equal(t, envelopeTool, body.Get("tool_choice.name").String())

	httpReq, err = c.NewRequest(context.Background(), &aisdk.Request{
		Params:         aisdk.Parameters{Model: "m", Tools: []*aisdk.ToolDefinition{{Name: "add"}}},
		Window:         []aisdk.Turn{{Role: aisdk.RoleUser, Text: "hi"}},
		ResponseSchema: schema,
	})
	require.NoError(t, err)
	body = readBody(t, httpReq)
	assert.Len(t, body.Get("tools").Array(), 2)
	assert.Equal(t, "any", body.Get("tool_choice.type").String())
}

func sse(events ...[2]string) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString("event: " + e[0] + "\n")
		sb.WriteString("data: " + e[1] + "\n\n")
	}
	return sb.String()
}

func decode(t *testing.T, body string, chunk int) []aisdk.Event {
	t.Helper()
	dec := stream.NewDecoder(stream.SSE{}, newTranslator())
	var out []aisdk.Event
	for len(body) > 0 {
		n := min(chunk, len(body))
		evs, err := dec.Feed([]byte(body[:n]))
		require.NoError(t, err)
		out = append(out, evs...)
		body = body[n:]
	}
	evs, err := dec.Finish()
	require.NoError(t, err)
	return append(out, evs...)
}

var toolStream = sse(
	[2]string{"message_start", `{"type":"message_start","message":{"id":"msg_1","model":"claude"}}`},
	[2]string{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
	[2]string{"ping", `{"type":"ping"}`},
	[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`},
	[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"add."}}`},
	[2]string{"content_block_stop", `{"type":"content_block_stop","index":0}`},
	[2]string{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"add","input":{}}}`},
	[2]string{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"a\": 2"}}`},
	[2]string{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":", \"b\": 2}"}}`},
	[2]string{"content_block_stop", `{"type":"content_block_stop","index":1}`},
	[2]string{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":20}}`},
	[2]string{"message_stop", `{"type":"message_stop"}`},
)

func TestTranslateToolUse(t *testing.T) {
	for _, chunk := range []int{1, 7, 64, len(toolStream)} {
		events := decode(t, toolStream, chunk)
		require.Len(t, events, 4, "chunk size %d", chunk)
		assert.Equal(t, "Let me add.", aisdk.CollectText(events))
		require.Equal(t, aisdk.EventToolCall, events[2].Type)
		assert.Equal(t, "toolu_9", events[2].ToolCall.ID)
		assert.Equal(t, "add", events[2].ToolCall.Name)
		assert.JSONEq(t, `{"a":2,"b":2}`, string(events[2].ToolCall.Arguments))
		assert.Equal(t, aisdk.Done(aisdk.FinishToolCalls), events[3])
	}
}

func TestTranslateEnvelopeTool(t *testing.T) {
	body := sse(
		[2]string{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"respond","input":{}}}`},
		[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"message\":\"hi\","}}`},
		[2]string{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"context\":{}}"}}`},
		[2]string{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		[2]string{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`},
		[2]string{"message_stop", `{"type":"message_stop"}`},
	)
	events := decode(t, body, 16)
	require.Len(t, events, 3)
	assert.JSONEq(t, `{"message":"hi","context":{}}`, aisdk.CollectText(events))
	assert.Equal(t, aisdk.Done(aisdk.FinishStop), events[2])
}

func TestTranslateStopReasons(t *testing.T) {
	tests := []struct {
		reason string
		want   aisdk.FinishReason
	}{
		{"end_turn", aisdk.FinishStop},
		{"stop_sequence", aisdk.FinishStop},
		{"max_tokens", aisdk.FinishLength},
		{"", aisdk.FinishNone},
	}
	for _, tt := range tests {
		tr := newTranslator()
		tr.stopReason = tt.reason
		if got := tr.finishReason(); got != tt.want {
			t.Errorf("finishReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestTranslateErrorEvent(t *testing.T) {
	body := sse(
		[2]string{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		[2]string{"error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
	)
	events := decode(t, body, 5)
	require.Len(t, events, 1)
	require.Equal(t, aisdk.EventError, events[0].Type)
	var apiErr *aisdk.APIError
	require.ErrorAs(t, events[0].Err, &apiErr)
	assert.Equal(t, "overloaded_error", apiErr.Type)
	assert.True(t, apiErr.IsRetryable())
}

func TestTranslateUnknownBlock(t *testing.T) {
	dec := stream.NewDecoder(stream.SSE{}, newTranslator())
	_, err := dec.Feed([]byte("event: content_block_delta\ndata: {\"index\":3,\"delta\":{\"type\":\"text_delta\",\"text\":\"x\"}}\n\n"))
	assert.ErrorIs(t, err, aisdk.ErrDecode)
}

func TestDecodeError(t *testing.T) {
	c := NewClient(Config{})
	resp := &http.Response{
		StatusCode: 529,
		Header:     http.Header{"Request-Id": []string{"req_1"}},
		Body:       io.NopCloser(strings.NewReader(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)),
	}
	var apiErr *aisdk.APIError
	require.ErrorAs(t, c.DecodeError(resp), &apiErr)
	assert.Equal(t, "Overloaded", apiErr.Message)
	assert.Equal(t, "overloaded_error", apiErr.Type)
	assert.Equal(t, "req_1", apiErr.RequestID)
	assert.True(t, apiErr.IsRetryable())

	resp = &http.Response{StatusCode: 400, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("bad"))}
	require.ErrorAs(t, c.DecodeError(resp), &apiErr)
	assert.Equal(t, "bad", apiErr.Message)
	assert.False(t, apiErr.IsRetryable())
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		_, _ = io.WriteString(w, `{"data":[{"id":"claude-sonnet-4-5","display_name":"Claude Sonnet 4.5","created_at":"2025-09-29T00:00:00Z"}],"has_more":false}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "claude-sonnet-4-5", models[0].ID)
	assert.Equal(t, "Claude Sonnet 4.5", models[0].Name)
	assert.NotZero(t, models[0].Created)
}
