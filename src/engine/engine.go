package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/monadic"
	"github.com/elee1766/chatmux/src/ratelimit"
	"github.com/elee1766/chatmux/src/retry"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/tidwall/gjson"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultQueueSize      = 16

	maxErrorBody = 64 << 10
)

// ErrReadTimeout is the cause of a read that saw no bytes for the read timeout.
var ErrReadTimeout = errors.New("stream read timed out")

// Config contains engine configuration
type Config struct {
	HTTPClient *http.Client
	Retry      *retry.Policy
	Dispatcher *agent.Dispatcher
	Limiter    *ratelimit.Tracker
	Logger     *slog.Logger

	// ConnectTimeout bounds dialing when HTTPClient is not set
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for the next chunk of a streaming response
	ReadTimeout time.Duration
	// TurnTimeout bounds a whole turn including every tool hop
	TurnTimeout time.Duration
	QueueSize   int
}

// Engine runs turns for any number of sessions.
type Engine struct {
	client      *http.Client
	retry       *retry.Policy
	dispatcher  *agent.Dispatcher
	limiter     *ratelimit.Tracker
	logger      *slog.Logger
	readTimeout time.Duration
	turnTimeout time.Duration
	queueSize   int
}

// New creates an engine, filling unset fields with defaults.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(cfg.ConnectTimeout)
	}
	policy := cfg.Retry
	if policy == nil {
		policy = &retry.Policy{}
	}
	if policy.Logger == nil {
		p := *policy
		p.Logger = logger.With("component", "retry")
		policy = &p
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = agent.NewDispatcher(logger)
	}

	return &Engine{
		client:      client,
		retry:       policy,
		dispatcher:  dispatcher,
		limiter:     cfg.Limiter,
		logger:      logger.With("component", "engine"),
		readTimeout: cfg.ReadTimeout,
		turnTimeout: cfg.TurnTimeout,
		queueSize:   cfg.QueueSize,
	}
}

// NewHTTPClient returns a client whose dials are bounded by connectTimeout.
// Streaming responses have no overall client timeout; reads are bounded by
// the engine's idle timer instead.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}

// Result is the outcome of one submitted turn.
type Result struct {
	// Text is the assistant's visible answer. In monadic mode it is the
	// envelope's message.
	Text string
	// Raw is the unprocessed text of the final pass.
	Raw          string
	FinishReason aisdk.FinishReason
	// Context is the session's monadic context after the turn.
	Context map[string]any
	// Hops counts the tool round trips taken.
	Hops int
	// Turns are the turns appended by this request, starting with the user turn.
	Turns []aisdk.Turn
	Err   *aisdk.Error
}

// passResult accumulates what one decode pass delivered.
type passResult struct {
	text    strings.Builder
	calls   []aisdk.ToolCallRequest
	finish  aisdk.FinishReason
	emitted bool
}

// Send runs the session's pending user turn to completion: it requests a
// completion, dispatches any tool calls and repeats with a fresh window until
// the model stops or the tool depth is exhausted. Exactly one Done or Error
// event is emitted at the end.
func (e *Engine) Send(ctx context.Context, s *Session, onEvent aisdk.EventHandler) Result {
	params := s.Params()
	logger := s.logger
	var res Result

	fail := func(err error) Result {
		res.Err = classify(err)
		res.Context = s.Context()
		onEvent.Emit(aisdk.ErrorEvent(res.Err))
		logger.Warn("turn failed", "kind", res.Err.Kind, "error", res.Err.Message, "hops", res.Hops)
		return res
	}

	var schema []byte
	if params.Monadic && params.Strict {
		raw, err := monadic.SchemaJSON(s.contextSchema)
		if err != nil {
			return fail(err)
		}
		schema = raw
	}

	for depth := 0; ; depth++ {
		req := &aisdk.Request{
			Params:         params,
			Window:         s.window(params.ContextSize),
			Stream:         true,
			ResponseSchema: schema,
		}

		pass, err := e.pass(ctx, s.vendor, req, onEvent)
		text := pass.text.String()
		if err != nil {
			if text != "" {
				// partial output is kept in the transcript
				s.appendTurn(aisdk.Turn{Role: aisdk.RoleAssistant, Text: text})
			}
			res.Raw = text
			res.Text = text
			return fail(err)
		}

		if len(pass.calls) == 0 {
			res.Raw = text
			res.Text = text
			res.FinishReason = pass.finish
			if res.FinishReason == aisdk.FinishNone {
				res.FinishReason = aisdk.FinishStop
			}

			s.appendTurn(aisdk.Turn{Role: aisdk.RoleAssistant, Text: text})
			if params.Monadic {
				env, found, err := monadic.New(params.Strict).Recover(text)
				if err != nil {
					return fail(err)
				}
				// a reply without an envelope leaves the stored context alone
				if found {
					s.setContext(env.Context)
				} else {
					logger.Debug("no envelope in reply, keeping context")
				}
				res.Text = env.Message
			}
			res.Context = s.Context()
			onEvent.Emit(aisdk.Done(res.FinishReason))
			logger.Debug("turn complete", "finish_reason", res.FinishReason, "hops", res.Hops)
			return res
		}

		s.appendTurn(aisdk.Turn{Role: aisdk.RoleAssistant, Text: text, ToolCalls: pass.calls})
		for _, result := range e.dispatcher.DispatchAll(ctx, pass.calls, s.tools) {
			s.appendTurn(aisdk.Turn{
				Role:       aisdk.RoleTool,
				Text:       result.Content,
				ToolCallID: result.CallID,
				Name:       result.Name,
			})
			logger.Debug("tool call finished", "tool", result.Name, "is_error", result.IsError, "duration", result.Duration)
		}

		if depth >= params.MaxFuncCallDepth {
			return fail(fmt.Errorf("%w: limit is %d", aisdk.ErrToolDepthExceeded, params.MaxFuncCallDepth))
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		res.Hops++
	}
}

// pass performs one retried request and decodes its stream.
func (e *Engine) pass(ctx context.Context, vendor Vendor, req *aisdk.Request, onEvent aisdk.EventHandler) (*passResult, error) {
	pr := &passResult{}
	_, err := retry.Do(ctx, e.retry, func(ctx context.Context, attempt int) (struct{}, error) {
		pr.text.Reset()
		pr.calls = nil
		pr.finish = aisdk.FinishNone

		err := e.attempt(ctx, vendor, req, pr, onEvent)
		if err != nil && pr.emitted {
			return struct{}{}, retry.Stop(err)
		}
		return struct{}{}, err
	})
	return pr, err
}

func (e *Engine) attempt(ctx context.Context, vendor Vendor, req *aisdk.Request, pr *passResult, onEvent aisdk.EventHandler) error {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := vendor.NewRequest(attemptCtx, req)
	if err != nil {
		return retry.Stop(fmt.Errorf("failed to build %s request: %w", vendor.Name(), err))
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &aisdk.NetworkError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if dec, ok := vendor.(ErrorDecoder); ok {
			return dec.DecodeError(resp)
		}
		return decodeAPIError(resp)
	}

	timer := time.AfterFunc(e.readTimeout, func() { cancel(ErrReadTimeout) })
	defer timer.Stop()
	body := &idleReader{r: resp.Body, timer: timer, timeout: e.readTimeout}

	dec := stream.NewDecoder(vendor.Framing(), vendor.NewTranslator())
	term, err := dec.Decode(attemptCtx, body, func(ev aisdk.Event) error {
		switch ev.Type {
		case aisdk.EventFragment:
			pr.text.WriteString(ev.Text)
		case aisdk.EventToolCall:
			pr.calls = append(pr.calls, *ev.ToolCall)
		}
		pr.emitted = true
		onEvent.Emit(ev)
		return nil
	})
	if err != nil {
		if errors.Is(context.Cause(attemptCtx), ErrReadTimeout) {
			return &aisdk.NetworkError{Op: "read", Err: ErrReadTimeout}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, aisdk.ErrDecode) || term.Type == aisdk.EventError {
			return err
		}
		return &aisdk.NetworkError{Op: "read", Err: err}
	}
	pr.finish = term.FinishReason
	return nil
}

// idleReader pushes the read deadline forward on every read.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

// decodeAPIError builds an APIError from a non-2xx response, picking the
// message out of the common {"error": {"message": ...}} shapes.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &aisdk.APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		RetryAfter: aisdk.ParseRetryAfter(resp.Header),
		Message:    strings.TrimSpace(string(body)),
	}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		switch msg := res.Get("error"); {
		case msg.IsObject():
			apiErr.Message = msg.Get("message").String()
			apiErr.Type = msg.Get("type").String()
			apiErr.Code = msg.Get("code").String()
		case msg.Type == gjson.String:
			apiErr.Message = msg.String()
		case res.Get("message").Exists():
			apiErr.Message = res.Get("message").String()
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// classify maps an error to its terminal event payload.
func classify(err error) *aisdk.Error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return aisdk.NewError(aisdk.KindExhausted, err)
	}
	return aisdk.AsError(err)
}
