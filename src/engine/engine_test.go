package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/ratelimit"
	"github.com/elee1766/chatmux/src/retry"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// mockVendor posts the window as JSON and reads NDJSON units of the forms
// {"delta": ...}, {"tool": {...}} and {"done": true, "finish": ...}.
type mockVendor struct {
	url string
}

func (m *mockVendor) Name() string { return "mock" }

func (m *mockVendor) NewRequest(ctx context.Context, req *aisdk.Request) (*http.Request, error) {
	body, err := json.Marshal(req.Window)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
}

func (m *mockVendor) Framing() stream.Framing { return stream.Lines{} }

func (m *mockVendor) NewTranslator() stream.Translator {
	return stream.TranslatorFunc(func(unit []byte) ([]aisdk.Event, error) {
		if !gjson.ValidBytes(unit) {
			return nil, fmt.Errorf("invalid unit %q", unit)
		}
		res := gjson.ParseBytes(unit)
		var out []aisdk.Event
		if d := res.Get("delta"); d.Exists() {
			out = append(out, aisdk.Fragment(d.String()))
		}
		if tc := res.Get("tool"); tc.Exists() {
			out = append(out, aisdk.ToolCallRequested(aisdk.ToolCallRequest{
				ID:        tc.Get("id").String(),
				Name:      tc.Get("name").String(),
				Arguments: json.RawMessage(tc.Get("arguments").Raw),
			}))
		}
		if res.Get("done").Bool() {
			reason := aisdk.FinishReason(res.Get("finish").String())
			if reason == aisdk.FinishNone {
				reason = aisdk.FinishStop
			}
			out = append(out, aisdk.Done(reason))
		}
		return out, nil
	})
}

type recorder struct {
	mu     sync.Mutex
	events []aisdk.Event
}

func (r *recorder) handle(ev aisdk.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []aisdk.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]aisdk.Event(nil), r.events...)
}

func write(w http.ResponseWriter, chunks ...string) {
	for _, c := range chunks {
		_, _ = io.WriteString(w, c)
		w.(http.Flusher).Flush()
	}
}

func readWindow(t *testing.T, r *http.Request) []aisdk.Turn {
	var window []aisdk.Turn
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&window))
	return window
}

func newTestEngine(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		HTTPClient:  srv.Client(),
		Retry:       &retry.Policy{MaxAttempts: 3, Delay: time.Millisecond},
		ReadTimeout: 2 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func newTestSession(t *testing.T, e *Engine, srv *httptest.Server, params aisdk.Parameters, tools agent.Registry) *Session {
	t.Helper()
	s, err := e.NewSession(SessionOptions{
		Vendor:        &mockVendor{url: srv.URL},
		Params:        params,
		Tools:         tools,
		InitialPrompt: "You are a calculator.",
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCalculateSplitMidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := readWindow(t, r)
		assert.Equal(t, "Calculate 2+2", window[len(window)-1].Text)
		write(w, "{\"delta\":\"4\"}\n{\"do", "ne\":true}\n")
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	rec := &recorder{}
	res, err := s.Ask(context.Background(), Input{Text: "Calculate 2+2"}, rec.handle)
	require.NoError(t, err)
	require.Nil(t, res.Err)

	assert.Equal(t, []aisdk.Event{aisdk.Fragment("4"), aisdk.Done(aisdk.FinishStop)}, rec.all())
	assert.Equal(t, "4", res.Text)
	assert.Equal(t, aisdk.FinishStop, res.FinishReason)

	hist := s.History()
	require.Len(t, hist, 3)
	assert.Equal(t, aisdk.RoleSystem, hist[0].Role)
	assert.Equal(t, aisdk.RoleAssistant, hist[2].Role)
	assert.Equal(t, "4", hist[2].Text)
	assert.Len(t, res.Turns, 2)
}

func TestToolLoopTermination(t *testing.T) {
	var requests atomic.Int32
	var stopTools atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if stopTools.Load() {
			write(w, "{\"delta\":\"fine\"}\n{\"done\":true}\n")
			return
		}
		write(w, fmt.Sprintf("{\"tool\":{\"id\":\"call_%d\",\"name\":\"echo\",\"arguments\":{}}}\n{\"done\":true,\"finish\":\"tool_calls\"}\n", n))
	}))
	defer srv.Close()

	tb := agent.NewToolbox()
	var calls atomic.Int32
	require.NoError(t, tb.RegisterTool(&agent.FuncTool{
		Name: "echo",
		Fn: func(ctx context.Context, args json.RawMessage) (any, error) {
			calls.Add(1)
			return "pong", nil
		},
	}))

	const depth = 3
	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 50, MaxFuncCallDepth: depth}, tb)
	rec := &recorder{}
	res, err := s.Ask(context.Background(), Input{Text: "loop forever"}, rec.handle)
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindToolDepthExceeded, res.Err.Kind)
	assert.Equal(t, depth, res.Hops)
	assert.Equal(t, int32(depth+1), requests.Load())
	assert.Equal(t, int32(depth+1), calls.Load())

	events := rec.all()
	last := events[len(events)-1]
	assert.Equal(t, aisdk.EventError, last.Type)
	terminals := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)

	// the session stays usable
	stopTools.Store(true)
	res, err = s.Ask(context.Background(), Input{Text: "stop"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Err)
	assert.Equal(t, "fine", res.Text)
}

func TestToolResultFoldedIntoWindow(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := readWindow(t, r)
		if requests.Add(1) == 1 {
			write(w, "{\"delta\":\"Let me add. \"}\n{\"tool\":{\"id\":\"c1\",\"name\":\"add\",\"arguments\":{\"a\":2,\"b\":2}}}\n{\"done\":true,\"finish\":\"tool_calls\"}\n")
			return
		}

		if !assert.GreaterOrEqual(t, len(window), 3) {
			return
		}
		call := window[len(window)-2]
		result := window[len(window)-1]
		assert.Equal(t, aisdk.RoleAssistant, call.Role)
		assert.Equal(t, "Let me add. ", call.Text)
		assert.Len(t, call.ToolCalls, 1)
		assert.Equal(t, aisdk.RoleTool, result.Role)
		assert.Equal(t, "c1", result.ToolCallID)
		assert.JSONEq(t, `{"sum":4}`, result.Text)
		write(w, "{\"delta\":\"4\"}\n{\"done\":true}\n")
	}))
	defer srv.Close()

	type addInput struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	add, err := agent.NewGenericTool("add", "adds", func(ctx context.Context, in addInput) (map[string]int, error) {
		return map[string]int{"sum": in.A + in.B}, nil
	})
	require.NoError(t, err)
	tb := agent.NewToolbox()
	require.NoError(t, tb.RegisterTool(add))

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 50, MaxFuncCallDepth: 2}, tb)
	rec := &recorder{}
	res, err := s.Ask(context.Background(), Input{Text: "Calculate 2+2"}, rec.handle)
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, "4", res.Text)
	assert.Equal(t, 1, res.Hops)

	var types []aisdk.EventType
	for _, ev := range rec.all() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []aisdk.EventType{aisdk.EventFragment, aisdk.EventToolCall, aisdk.EventFragment, aisdk.EventDone}, types)

	roles := []aisdk.Role{}
	for _, turn := range res.Turns {
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []aisdk.Role{aisdk.RoleUser, aisdk.RoleAssistant, aisdk.RoleTool, aisdk.RoleAssistant}, roles)
}

func TestMonadicContextReplaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := readWindow(t, r)
		assert.JSONEq(t, `{"message":"again","context":{"count":1,"stale":"x"}}`, window[len(window)-1].Text)
		write(w, `{"delta":"{\"message\":\"ok\","}`+"\n", `{"delta":"\"context\":{\"count\":2}}"}`+"\n", "{\"done\":true}\n")
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	s, err := e.NewSession(SessionOptions{
		Vendor:  &mockVendor{url: srv.URL},
		Params:  aisdk.Parameters{ContextSize: 10, Monadic: true},
		Context: map[string]any{"count": float64(1), "stale": "x"},
	})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Ask(context.Background(), Input{Text: "again"}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Err)

	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, map[string]any{"count": float64(2)}, s.Context())
	assert.Equal(t, map[string]any{"count": float64(2)}, res.Context)
	assert.Contains(t, s.History()[0].Text, `"message"`)
}

func TestFreeTextReplyWithoutEnvelopeKeepsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write(w, "{\"delta\":\"sure, here you go\"}\n", "{\"done\":true}\n")
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	s, err := e.NewSession(SessionOptions{
		Vendor:  &mockVendor{url: srv.URL},
		Params:  aisdk.Parameters{ContextSize: 10, Monadic: true},
		Context: map[string]any{"count": float64(1)},
	})
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Ask(context.Background(), Input{Text: "hello"}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Err)

	assert.Equal(t, "sure, here you go", res.Text)
	assert.Equal(t, map[string]any{"count": float64(1)}, s.Context())
	assert.Equal(t, map[string]any{"count": float64(1)}, res.Context)
}

func TestStrictMonadicInvalidOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write(w, "{\"delta\":\"not json\"}\n{\"done\":true}\n")
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10, Monadic: true, Strict: true}, nil)
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindInvalidStructuredOutput, res.Err.Kind)
	assert.Empty(t, s.Context())

	hist := s.History()
	assert.Equal(t, "not json", hist[len(hist)-1].Text)
}

func TestRetryBeforeFirstFragment(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		write(w, "{\"delta\":\"ok\"}\n{\"done\":true}\n")
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(3), requests.Load())
}

func TestExhaustedRetries(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindExhausted, res.Err.Kind)
	assert.Equal(t, int32(3), requests.Load())
}

func TestNoRetryAfterFragment(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		write(w, "{\"delta\":\"par\"}\n")
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	rec := &recorder{}
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, rec.handle)
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindNetwork, res.Err.Kind)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, "par", aisdk.CollectText(rec.all()))

	hist := s.History()
	assert.Equal(t, aisdk.RoleAssistant, hist[len(hist)-1].Role)
	assert.Equal(t, "par", hist[len(hist)-1].Text)
}

func TestCancelCommitsPartialText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write(w, "{\"delta\":\"partial \"}\n", "{\"delta\":\"answer\"}\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	var fragments atomic.Int32
	res, err := s.Ask(ctx, Input{Text: "hi"}, func(ev aisdk.Event) {
		rec.handle(ev)
		if ev.Type == aisdk.EventFragment && fragments.Add(1) == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindCancelled, res.Err.Kind)

	events := rec.all()
	assert.Equal(t, aisdk.EventError, events[len(events)-1].Type)
	assert.Equal(t, "partial answer", aisdk.CollectText(events))

	hist := s.History()
	assert.Equal(t, "partial answer", hist[len(hist)-1].Text)
}

func TestReadTimeoutRetriedBeforeFragments(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		write(w, "{\"delta\":\"late\"}\n{\"done\":true}\n")
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, func(c *Config) { c.ReadTimeout = 50 * time.Millisecond })
	s := newTestSession(t, e, srv, aisdk.Parameters{ContextSize: 10}, nil)
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, "late", res.Text)
	assert.Equal(t, int32(2), requests.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	res, err := s.Ask(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, aisdk.KindHTTP, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "invalid api key")
	assert.Equal(t, int32(1), requests.Load())
}

func TestTurnsAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var order []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		window := readWindow(t, r)
		mu.Lock()
		order = append(order, window[len(window)-1].Text)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		write(w, "{\"delta\":\"ack\"}\n{\"done\":true}\n")
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 100}, nil)
	var results []<-chan Result
	for i := 0; i < 5; i++ {
		ch, err := s.Submit(context.Background(), Input{Text: fmt.Sprintf("turn %d", i)}, nil)
		require.NoError(t, err)
		results = append(results, ch)
	}
	for _, ch := range results {
		res := <-ch
		require.Nil(t, res.Err)
	}

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, []string{"turn 0", "turn 1", "turn 2", "turn 3", "turn 4"}, order)
	assert.Len(t, s.History(), 11)
}

func TestRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write(w, "{\"done\":true}\n")
	}))
	defer srv.Close()

	e := newTestEngine(t, srv, func(c *Config) { c.Limiter = ratelimit.New(8, 1, time.Hour) })
	s := newTestSession(t, e, srv, aisdk.Parameters{ContextSize: 10}, nil)

	_, err := s.Ask(context.Background(), Input{Text: "one"}, nil)
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), Input{Text: "two"}, nil)
	assert.ErrorIs(t, err, aisdk.ErrRateLimited)
}

func TestSubmitAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{}, nil)
	s.Close()
	_, err := s.Submit(context.Background(), Input{Text: "late"}, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseCancelsQueuedTurns(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newTestSession(t, newTestEngine(t, srv), srv, aisdk.Parameters{ContextSize: 10}, nil)
	first, err := s.Submit(context.Background(), Input{Text: "first"}, nil)
	require.NoError(t, err)
	second, err := s.Submit(context.Background(), Input{Text: "second"}, nil)
	require.NoError(t, err)

	<-started
	s.Close()

	for _, ch := range []<-chan Result{first, second} {
		res := <-ch
		require.NotNil(t, res.Err)
		assert.Equal(t, aisdk.KindCancelled, res.Err.Kind)
	}
	for _, turn := range s.History() {
		assert.NotEqual(t, "second", turn.Text, "queued turn must not reach the history")
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(&mockVendor{})
	require.NoError(t, err)

	v, err := r.Lookup("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", v.Name())

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, aisdk.ErrUnknownVendor)
	assert.Error(t, r.Register(&mockVendor{}))
	assert.Equal(t, []string{"mock"}, r.Names())
}
