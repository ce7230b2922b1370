package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// deltaTranslator understands {"delta": "..."} and {"done": true} units.
func deltaTranslator(unit []byte) ([]aisdk.Event, error) {
	if !gjson.ValidBytes(unit) {
		return nil, errors.New("invalid json")
	}
	res := gjson.ParseBytes(unit)
	if msg := res.Get("error"); msg.Exists() {
		return []aisdk.Event{aisdk.ErrorEvent(&aisdk.Error{Kind: aisdk.KindHTTP, Message: msg.String()})}, nil
	}
	var out []aisdk.Event
	if d := res.Get("delta"); d.Exists() && d.String() != "" {
		out = append(out, aisdk.Fragment(d.String()))
	}
	if res.Get("done").Bool() {
		out = append(out, aisdk.Done(aisdk.FinishStop))
	}
	return out, nil
}

func sseTranslator(unit []byte) ([]aisdk.Event, error) {
	ev := ParseEvent(unit)
	if ev.Data == "[DONE]" {
		return []aisdk.Event{aisdk.Done(aisdk.FinishStop)}, nil
	}
	return deltaTranslator([]byte(ev.Data))
}

func feedAll(t *testing.T, d *Decoder, chunks ...string) []aisdk.Event {
	t.Helper()
	var out []aisdk.Event
	for _, c := range chunks {
		evs, err := d.Feed([]byte(c))
		require.NoError(t, err)
		out = append(out, evs...)
	}
	evs, err := d.Finish()
	require.NoError(t, err)
	return append(out, evs...)
}

func TestSplitMidJSON(t *testing.T) {
	tests := []struct {
		name    string
		framing Framing
		chunks  []string
	}{
		{"objects", JSONObjects{}, []string{`{"del`, `ta":"4"}{"done":true}`}},
		{"lines", Lines{}, []string{"{\"delta\":\"4\"}\n{\"do", "ne\":true}\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.framing, TranslatorFunc(deltaTranslator))
			events := feedAll(t, d, tt.chunks...)
			require.Len(t, events, 2)
			assert.Equal(t, aisdk.Fragment("4"), events[0])
			assert.Equal(t, aisdk.Done(aisdk.FinishStop), events[1])
		})
	}
}

func TestChunkBoundaryInvariance(t *testing.T) {
	tests := []struct {
		name       string
		framing    Framing
		translator TranslatorFunc
		input      string
		want       string
	}{
		{
			name:       "ndjson",
			framing:    Lines{},
			translator: deltaTranslator,
			input:      "{\"delta\":\"Hel\"}\r\n\n{\"delta\":\"lo, \"}\n{\"delta\":\"w\\\"orld\"}\n{\"done\":true}\n",
			want:       "Hello, w\"orld",
		},
		{
			name:       "sse",
			framing:    SSE{},
			translator: sseTranslator,
			input:      ": keepalive\n\ndata: {\"delta\":\"a{b\"}\n\nevent: chunk\ndata: {\"delta\":\"}c\"}\r\n\r\ndata: [DONE]\n\n",
			want:       "a{b}c",
		},
		{
			name:       "objects",
			framing:    JSONObjects{},
			translator: deltaTranslator,
			input:      `[{"delta":"x{"}, {"delta":"\\}y","n":[1,{"a":2}]}, {"done":true}]`,
			want:       `x{\}y`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole := feedAll(t, NewDecoder(tt.framing, tt.translator), tt.input)
			require.Equal(t, tt.want, aisdk.CollectText(whole))
			require.Equal(t, aisdk.Done(aisdk.FinishStop), whole[len(whole)-1])

			for i := 0; i <= len(tt.input); i++ {
				got := feedAll(t, NewDecoder(tt.framing, tt.translator), tt.input[:i], tt.input[i:])
				assert.Equal(t, whole, got, "split at %d", i)
			}

			chunks := strings.Split(tt.input, "")
			got := feedAll(t, NewDecoder(tt.framing, tt.translator), chunks...)
			assert.Equal(t, whole, got, "byte at a time")
		})
	}
}

func TestDoneEndsPass(t *testing.T) {
	d := NewDecoder(JSONObjects{}, TranslatorFunc(deltaTranslator))
	events, err := d.Feed([]byte(`{"done":true}{"delta":"late"}`))
	require.NoError(t, err)
	require.Equal(t, []aisdk.Event{aisdk.Done(aisdk.FinishStop)}, events)
	assert.Positive(t, d.Buffered())

	events, err = d.Feed([]byte(`{"delta":"later"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	term, ok := d.Terminal()
	require.True(t, ok)
	assert.Equal(t, aisdk.EventDone, term.Type)
}

func TestMalformedUnit(t *testing.T) {
	tests := []struct {
		name    string
		framing Framing
		input   string
	}{
		{"bad line", Lines{}, "{\"delta\":\"a\"}\n{\"delta\":\n"},
		{"not an object", JSONObjects{}, `{"delta":"a"} 42`},
		{"unbalanced", JSONObjects{}, `{"delta":"a"}{"x":1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.framing, TranslatorFunc(deltaTranslator))
			events, err := d.Feed([]byte(tt.input))
			require.ErrorIs(t, err, aisdk.ErrDecode)
			assert.Equal(t, []aisdk.Event{aisdk.Fragment("a")}, events)

			term, ok := d.Terminal()
			require.True(t, ok)
			require.Equal(t, aisdk.EventError, term.Type)
			assert.Equal(t, aisdk.KindDecode, term.Err.Kind)
		})
	}
}

func TestDecodeReader(t *testing.T) {
	t.Run("eof without terminal", func(t *testing.T) {
		var got []aisdk.Event
		d := NewDecoder(Lines{}, TranslatorFunc(deltaTranslator))
		term, err := d.Decode(context.Background(), iotest.OneByteReader(strings.NewReader("{\"delta\":\"a\"}\n{\"delta\":\"b\"}")),
			func(ev aisdk.Event) error {
				got = append(got, ev)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, aisdk.Done(aisdk.FinishNone), term)
		assert.Equal(t, []aisdk.Event{aisdk.Fragment("a"), aisdk.Fragment("b")}, got)
	})

	t.Run("trailing garbage", func(t *testing.T) {
		d := NewDecoder(JSONObjects{}, TranslatorFunc(deltaTranslator))
		term, err := d.Decode(context.Background(), strings.NewReader(`{"delta":"a"}{"del`), func(aisdk.Event) error { return nil })
		require.ErrorIs(t, err, aisdk.ErrDecode)
		assert.Equal(t, aisdk.EventError, term.Type)
	})

	t.Run("vendor error event", func(t *testing.T) {
		d := NewDecoder(Lines{}, TranslatorFunc(deltaTranslator))
		term, err := d.Decode(context.Background(), strings.NewReader("{\"error\":\"overloaded\"}\n"), func(aisdk.Event) error { return nil })
		require.Error(t, err)
		assert.Equal(t, aisdk.EventError, term.Type)
		assert.Equal(t, "overloaded", term.Err.Message)
	})

	t.Run("emit error aborts", func(t *testing.T) {
		stop := errors.New("sink closed")
		d := NewDecoder(Lines{}, TranslatorFunc(deltaTranslator))
		_, err := d.Decode(context.Background(), strings.NewReader("{\"delta\":\"a\"}\n{\"done\":true}\n"), func(aisdk.Event) error { return stop })
		assert.ErrorIs(t, err, stop)
	})

	t.Run("read error", func(t *testing.T) {
		boom := errors.New("connection reset")
		d := NewDecoder(Lines{}, TranslatorFunc(deltaTranslator))
		_, err := d.Decode(context.Background(), iotest.ErrReader(boom), func(aisdk.Event) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := NewDecoder(Lines{}, TranslatorFunc(deltaTranslator))
		_, err := d.Decode(ctx, strings.NewReader("{\"delta\":\"a\"}\n"), func(aisdk.Event) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseEvent(t *testing.T) {
	ev := ParseEvent([]byte(": comment\nevent: message_delta\nid: 7\ndata: line one\ndata:line two\r\nretry: 100"))
	assert.Equal(t, "message_delta", ev.Name)
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "line one\nline two", ev.Data)
	assert.True(t, ParseEvent([]byte(": only a comment")).Empty())
}
