package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/monadic"
	"github.com/google/uuid"
	jsonschema "github.com/swaggest/jsonschema-go"
)

var (
	// ErrSessionClosed is returned by Submit after Close
	ErrSessionClosed = errors.New("session closed")
	// ErrQueueFull is returned by Submit when too many turns are waiting
	ErrQueueFull = errors.New("session queue is full")
)

// SessionOptions configures a new session.
type SessionOptions struct {
	// ID identifies the session; a random one is generated when empty
	ID     string
	Vendor Vendor
	Params aisdk.Parameters
	Tools  agent.Registry
	// ContextSchema constrains the monadic context in strict mode
	ContextSchema *jsonschema.Schema
	// InitialPrompt becomes the first, always retained, system turn
	InitialPrompt string
	// History resumes an earlier conversation; InitialPrompt is ignored then
	History []aisdk.Turn
	// Context is the stored monadic context to resume with
	Context map[string]any
	// Caller is the rate limiter key; the session ID is used when empty
	Caller string
}

// Input is one user turn.
type Input struct {
	Text   string
	Images []aisdk.ImageRef
}

type job struct {
	ctx    context.Context
	input  Input
	sink   aisdk.EventHandler
	result chan Result
}

// Session owns a conversation's turns, parameters and monadic context. Turns
// are processed one at a time by the session's worker in submission order.
type Session struct {
	id            string
	engine        *Engine
	vendor        Vendor
	tools         agent.Registry
	contextSchema *jsonschema.Schema
	caller        string
	logger        *slog.Logger

	mu      sync.RWMutex
	params  aisdk.Parameters
	turns   []aisdk.Turn
	context map[string]any

	queue       chan job
	closeOnce   sync.Once
	closeCtx    context.Context
	closeCancel context.CancelFunc
	done        chan struct{}
	closed      bool
}

// NewSession creates a session and starts its worker.
func (e *Engine) NewSession(opts SessionOptions) (*Session, error) {
	if opts.Vendor == nil {
		return nil, fmt.Errorf("session requires a vendor")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Caller == "" {
		opts.Caller = opts.ID
	}

	s := &Session{
		id:            opts.ID,
		engine:        e,
		vendor:        opts.Vendor,
		tools:         opts.Tools,
		contextSchema: opts.ContextSchema,
		caller:        opts.Caller,
		logger:        e.logger.With("session", opts.ID, "vendor", opts.Vendor.Name()),
		params:        opts.Params.Clone(),
		context:       maps.Clone(opts.Context),
		queue:         make(chan job, e.queueSize),
		done:          make(chan struct{}),
	}
	s.closeCtx, s.closeCancel = context.WithCancel(context.Background())
	if s.context == nil {
		s.context = map[string]any{}
	}

	if len(opts.History) > 0 {
		s.turns = append([]aisdk.Turn(nil), opts.History...)
	} else {
		prompt := opts.InitialPrompt
		if opts.Params.Monadic && !opts.Params.Strict {
			if prompt != "" {
				prompt += "\n\n"
			}
			prompt += monadic.Instructions
		}
		s.turns = []aisdk.Turn{{Role: aisdk.RoleSystem, Text: prompt, Active: true, CreatedAt: time.Now()}}
	}

	go s.work()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Vendor returns the session's vendor adapter.
func (s *Session) Vendor() Vendor {
	return s.vendor
}

// Params returns a copy of the current parameters.
func (s *Session) Params() aisdk.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone()
}

// SetParams replaces the parameters. Turns already running keep their copy.
func (s *Session) SetParams(p aisdk.Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p.Clone()
}

// History returns a copy of every turn, including inactive ones.
func (s *Session) History() []aisdk.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]aisdk.Turn(nil), s.turns...)
}

// Context returns a copy of the stored monadic context.
func (s *Session) Context() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.context)
}

// Submit queues a user turn. Events are delivered to sink in order from the
// session's worker; the returned channel yields the turn's result once.
func (s *Session) Submit(ctx context.Context, in Input, sink aisdk.EventHandler) (<-chan Result, error) {
	if limiter := s.engine.limiter; limiter != nil {
		if count, ok := limiter.Hit(s.caller); !ok {
			s.logger.Warn("rate limit exceeded", "caller", s.caller, "count", count)
			return nil, fmt.Errorf("%w: caller %s made %d requests", aisdk.ErrRateLimited, s.caller, count)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	j := job{ctx: ctx, input: in, sink: sink, result: make(chan Result, 1)}
	select {
	case s.queue <- j:
		return j.result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Ask submits a turn and waits for its result.
func (s *Session) Ask(ctx context.Context, in Input, sink aisdk.EventHandler) (Result, error) {
	ch, err := s.Submit(ctx, in, sink)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-s.done:
		return Result{}, ErrSessionClosed
	}
}

// Close stops the worker. The running turn is cancelled and queued turns
// complete with a cancelled result.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.closeCancel()
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
}

func (s *Session) work() {
	defer close(s.done)
	for j := range s.queue {
		j.result <- s.run(j)
	}
}

func (s *Session) run(j job) Result {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(s.closeCtx, cancel)
	defer stop()
	if s.engine.turnTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.engine.turnTimeout)
		defer cancelTimeout()
	}

	// the AfterFunc above cancels asynchronously, so look at closeCtx too
	err := ctx.Err()
	if err == nil {
		err = s.closeCtx.Err()
	}
	if err != nil {
		res := Result{Err: aisdk.NewError(aisdk.KindCancelled, err), Context: s.Context()}
		j.sink.Emit(aisdk.ErrorEvent(res.Err))
		return res
	}

	start := s.turnCount()
	text := j.input.Text
	params := s.Params()
	if params.Monadic {
		wrapped, err := monadic.New(params.Strict).Prompt(text, s.Context())
		if err != nil {
			res := Result{Err: aisdk.NewError(aisdk.KindInternal, err), Context: s.Context()}
			j.sink.Emit(aisdk.ErrorEvent(res.Err))
			return res
		}
		text = wrapped
	}
	s.appendTurn(aisdk.Turn{Role: aisdk.RoleUser, Text: text, Images: j.input.Images})

	res := s.engine.Send(ctx, s, j.sink)
	res.Turns = s.turnsFrom(start)
	return res
}

func (s *Session) appendTurn(t aisdk.Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.Active = true
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

func (s *Session) setContext(ctx map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = maps.Clone(ctx)
	if s.context == nil {
		s.context = map[string]any{}
	}
}

func (s *Session) window(contextSize int) []aisdk.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildWindow(s.turns, contextSize)
}

func (s *Session) turnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Session) turnsFrom(i int) []aisdk.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]aisdk.Turn(nil), s.turns[i:]...)
}
