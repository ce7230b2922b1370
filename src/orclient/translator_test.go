package orclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/retry"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func sse(chunks ...string) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString("data: ")
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func decodeAll(t *testing.T, body string) []aisdk.Event {
	t.Helper()
	c := NewClient(Config{})
	dec := stream.NewDecoder(c.Framing(), c.NewTranslator())
	var events []aisdk.Event
	// feed one byte at a time to exercise framing across chunk boundaries
	for i := 0; i < len(body); i++ {
		evs, err := dec.Feed([]byte{body[i]})
		require.NoError(t, err)
		events = append(events, evs...)
	}
	evs, err := dec.Finish()
	require.NoError(t, err)
	return append(events, evs...)
}

func TestTranslateText(t *testing.T) {
	body := ": OPENROUTER PROCESSING\n\n" + sse(
		`{"choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"total_tokens":9}}`,
		`[DONE]`,
	)
	events := decodeAll(t, body)
	require.Len(t, events, 3)
	assert.Equal(t, aisdk.Fragment("Hel"), events[0])
	assert.Equal(t, aisdk.Fragment("lo"), events[1])
	assert.Equal(t, aisdk.Done(aisdk.FinishStop), events[2])
}

func TestTranslateToolCalls(t *testing.T) {
	body := sse(
		`{"choices":[{"delta":{"content":"Let me check."}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"current_time","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"add","arguments":"{\"a\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"2,\"b\":2}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)
	events := decodeAll(t, body)
	require.Len(t, events, 4)
	assert.Equal(t, aisdk.Fragment("Let me check."), events[0])

	require.Equal(t, aisdk.EventToolCall, events[1].Type)
	assert.Equal(t, "call_a", events[1].ToolCall.ID)
	assert.Equal(t, "add", events[1].ToolCall.Name)
	assert.JSONEq(t, `{"a":2,"b":2}`, string(events[1].ToolCall.Arguments))

	require.Equal(t, aisdk.EventToolCall, events[2].Type)
	assert.Equal(t, "call_b", events[2].ToolCall.ID)
	assert.Equal(t, "current_time", events[2].ToolCall.Name)
	assert.Empty(t, events[2].ToolCall.Arguments)

	assert.Equal(t, aisdk.Done(aisdk.FinishToolCalls), events[3])
}

func TestTranslateDoneWithoutFinishReason(t *testing.T) {
	events := decodeAll(t, sse(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"add","arguments":"{}"}}]}}]}`,
		`[DONE]`,
	))
	require.Len(t, events, 2)
	assert.True(t, strings.HasPrefix(events[0].ToolCall.ID, "call_"))
	assert.Equal(t, aisdk.Done(aisdk.FinishToolCalls), events[1])
}

func TestTranslateFinishReasons(t *testing.T) {
	tests := map[string]aisdk.FinishReason{
		"stop":           aisdk.FinishStop,
		"length":         aisdk.FinishLength,
		"tool_calls":     aisdk.FinishToolCalls,
		"function_call":  aisdk.FinishToolCalls,
		"content_filter": aisdk.FinishStop,
	}
	for in, want := range tests {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranslateStreamError(t *testing.T) {
	events := decodeAll(t, sse(
		`{"choices":[{"delta":{"content":"par"}}]}`,
		`{"error":{"message":"provider overloaded","code":503}}`,
	))
	require.Len(t, events, 2)
	require.Equal(t, aisdk.EventError, events[1].Type)
	assert.Equal(t, aisdk.KindHTTP, events[1].Err.Kind)

	var apiErr *aisdk.APIError
	require.ErrorAs(t, events[1].Err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.True(t, apiErr.IsRetryable())
}

func TestTranslateMalformedChunk(t *testing.T) {
	c := NewClient(Config{})
	dec := stream.NewDecoder(c.Framing(), c.NewTranslator())
	_, err := dec.Feed([]byte("data: {\"choices\":[\n\n"))
	assert.ErrorIs(t, err, aisdk.ErrDecode)
}

// TestEngineToolRoundTrip drives a whole turn through the engine: the first
// pass asks for a tool, the second answers with its result in the window.
func TestEngineToolRoundTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := gjson.ParseBytes(raw)
		w.Header().Set("Content-Type", "text/event-stream")
		switch calls.Add(1) {
		case 1:
			assert.Equal(t, "add", body.Get("tools.0.function.name").String())
			_, _ = io.WriteString(w, sse(
				`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"add","arguments":"{\"a\":2,\"b\":2}"}}]}}]}`,
				`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			))
		default:
			msgs := body.Get("messages").Array()
			if assert.Len(t, msgs, 4) {
				assert.Equal(t, "call_1", msgs[2].Get("tool_calls.0.id").String())
				assert.Equal(t, "tool", msgs[3].Get("role").String())
				assert.JSONEq(t, `{"sum":4}`, msgs[3].Get("content").String())
			}
			_, _ = io.WriteString(w, sse(
				`{"choices":[{"delta":{"content":"4"},"finish_reason":"stop"}]}`,
				`[DONE]`,
			))
		}
	}))
	defer srv.Close()

	tb := agent.NewToolbox()
	add, err := agent.NewGenericTool("add", "adds numbers", func(ctx context.Context, in addArgs) (map[string]int, error) {
		return map[string]int{"sum": in.A + in.B}, nil
	})
	require.NoError(t, err)
	require.NoError(t, tb.RegisterTool(add))

	eng := engine.New(engine.Config{
		HTTPClient:  srv.Client(),
		Retry:       &retry.Policy{MaxAttempts: 2, Delay: time.Millisecond},
		ReadTimeout: 2 * time.Second,
	})
	sess, err := eng.NewSession(engine.SessionOptions{
		Vendor:        NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}),
		Params:        aisdk.Parameters{Model: "m", ContextSize: 10, MaxFuncCallDepth: 2, Tools: tb.Definitions()},
		Tools:         tb,
		InitialPrompt: "You are a calculator.",
	})
	require.NoError(t, err)
	defer sess.Close()

	var events []aisdk.Event
	res, err := sess.Ask(context.Background(), engine.Input{Text: "Calculate 2+2"}, func(ev aisdk.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, "4", res.Text)
	assert.Equal(t, 1, res.Hops)
	assert.Equal(t, int32(2), calls.Load())

	require.NotEmpty(t, events)
	assert.Equal(t, aisdk.Done(aisdk.FinishStop), events[len(events)-1])

	history := sess.History()
	require.Len(t, history, 5)
	require.Len(t, history[2].ToolCalls, 1)
	assert.Equal(t, "call_1", history[2].ToolCalls[0].ID)
	assert.Equal(t, aisdk.RoleTool, history[3].Role)
}
