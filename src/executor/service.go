package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/charmbracelet/x/ansi"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/apps"
	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/storage"
	"github.com/google/uuid"
)

const titleWidth = 60

// Service runs app sessions on the engine and persists their transcripts.
type Service struct {
	engine   *engine.Engine
	vendors  *engine.Registry
	database *storage.DB
	logger   *slog.Logger
	sessions *haxmap.Map[string, *LiveSession]
	// startMu serializes session starts so a resumed session is live once
	startMu sync.Mutex
}

// ServiceConfig holds configuration for creating a new Service
type ServiceConfig struct {
	Engine  *engine.Engine
	Vendors *engine.Registry
	// Database stores transcripts; sessions are memory-only when nil
	Database *storage.DB
	Logger   *slog.Logger
}

// NewService creates a new session service
func NewService(config ServiceConfig) (*Service, error) {
	if config.Engine == nil {
		return nil, ErrEngineRequired
	}
	if config.Vendors == nil {
		return nil, ErrVendorsRequired
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Service{
		engine:   config.Engine,
		vendors:  config.Vendors,
		database: config.Database,
		logger:   config.Logger.With("component", "executor"),
		sessions: haxmap.New[string, *LiveSession](),
	}, nil
}

// StartOptions selects the session to start.
type StartOptions struct {
	App *apps.App
	// SessionID resumes a stored session
	SessionID string
	// Resume continues the app's most recent session, if any
	Resume bool
	// Caller is the rate limiter key
	Caller    string
	Callbacks *Callbacks
}

// StartSession creates a session, or resumes one from storage.
func (s *Service) StartSession(ctx context.Context, opts StartOptions) (*LiveSession, error) {
	if opts.App == nil {
		return nil, ErrAppRequired
	}
	app := opts.App

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if opts.SessionID != "" {
		if live, ok := s.sessions.Get(opts.SessionID); ok {
			if live.app.Name != app.Name {
				return nil, fmt.Errorf("%w: %s runs app %s", ErrAppMismatch, opts.SessionID, live.app.Name)
			}
			return live, nil
		}
	}

	vendor, err := s.vendors.Lookup(app.Vendor)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", app.Name, err)
	}

	record, history, err := s.loadRecord(ctx, opts)
	if err != nil {
		return nil, err
	}
	if record != nil && record.App != app.Name {
		return nil, fmt.Errorf("%w: %s runs app %s", ErrAppMismatch, record.ID, record.App)
	}

	sessionOpts := engine.SessionOptions{
		Vendor:        vendor,
		Params:        app.Params,
		Tools:         observedTools{Toolbox: app.Tools, callbacks: opts.Callbacks},
		ContextSchema: app.ContextSchema,
		InitialPrompt: app.InitialPrompt,
		Caller:        opts.Caller,
	}
	if record != nil {
		sessionOpts.ID = record.ID
		sessionOpts.History = history
		sessionOpts.Context = record.Context
	} else {
		record, err = s.createRecord(ctx, app)
		if err != nil {
			return nil, err
		}
		sessionOpts.ID = record.ID
		sessionOpts.Context = app.InitialContext
	}

	session, err := s.engine.NewSession(sessionOpts)
	if err != nil {
		return nil, err
	}

	live := &LiveSession{
		service: s,
		app:     app,
		record:  record,
		session: session,
		logger:  s.logger.With("session", record.ID, "app", app.Name),
	}
	live.turn.Store(int64(countUserTurns(history)))
	s.sessions.Set(record.ID, live)

	live.logger.Info("session started", "resumed", len(history) > 0, "turns", len(history))
	return live, nil
}

func (s *Service) loadRecord(ctx context.Context, opts StartOptions) (*storage.Session, []aisdk.Turn, error) {
	if opts.SessionID == "" && !opts.Resume {
		return nil, nil, nil
	}
	if s.database == nil {
		if opts.SessionID != "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, opts.SessionID)
		}
		return nil, nil, nil
	}

	var record *storage.Session
	var err error
	if opts.SessionID != "" {
		record, err = storage.GetSessionByID(ctx, s.database.DB(), opts.SessionID)
		if err == nil && record == nil {
			err = fmt.Errorf("%w: %s", ErrSessionNotFound, opts.SessionID)
		}
	} else {
		record, err = storage.GetLatestSession(ctx, s.database.DB(), opts.App.Name)
	}
	if err != nil || record == nil {
		return nil, nil, err
	}

	history, err := storage.LoadHistory(ctx, s.database.DB(), record.ID)
	if err != nil {
		return nil, nil, err
	}
	return record, history, nil
}

func (s *Service) createRecord(ctx context.Context, app *apps.App) (*storage.Session, error) {
	params, err := paramsObject(app.Params)
	if err != nil {
		return nil, err
	}
	record := &storage.Session{
		ID:        uuid.NewString(),
		App:       app.Name,
		Vendor:    app.Vendor,
		Model:     app.Params.Model,
		Params:    params,
		Context:   storage.JSONObject(app.InitialContext),
		CreatedAt: time.Now(),
	}
	if s.database == nil {
		return record, nil
	}
	if err := storage.CreateSession(ctx, s.database.DB(), record); err != nil {
		return nil, err
	}
	return record, nil
}

// paramsObject stores the parameters without tool schemas.
func paramsObject(p aisdk.Parameters) (storage.JSONObject, error) {
	p.Tools = nil
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	var out storage.JSONObject
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	return out, nil
}

func countUserTurns(history []aisdk.Turn) int {
	n := 0
	for _, t := range history {
		if t.Role == aisdk.RoleUser {
			n++
		}
	}
	return n
}

// Get returns a live session.
func (s *Service) Get(id string) (*LiveSession, bool) {
	return s.sessions.Get(id)
}

// Sessions returns the IDs of the live sessions, sorted.
func (s *Service) Sessions() []string {
	var ids []string
	s.sessions.ForEach(func(id string, _ *LiveSession) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// CloseSession stops a live session. Its transcript stays in storage.
func (s *Service) CloseSession(id string) error {
	live, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.sessions.Del(id)
	live.session.Close()
	live.logger.Info("session closed")
	return nil
}

// CloseAll stops every live session.
func (s *Service) CloseAll() {
	for _, id := range s.Sessions() {
		_ = s.CloseSession(id)
	}
}

// Transcript returns a session's complete history: from the live session
// when it is running, otherwise from storage.
func (s *Service) Transcript(ctx context.Context, id string) (*Transcript, error) {
	if live, ok := s.sessions.Get(id); ok {
		return live.Transcript(), nil
	}
	if s.database == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	record, err := storage.GetSessionByID(ctx, s.database.DB(), id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	turns, err := storage.LoadHistory(ctx, s.database.DB(), id)
	if err != nil {
		return nil, err
	}
	return &Transcript{Session: record, Turns: turns}, nil
}

// ListSessions returns stored sessions, most recent first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]storage.Session, error) {
	if s.database == nil {
		return nil, ErrNoStorage
	}
	return storage.ListSessions(ctx, s.database.DB(), limit)
}

// LiveSession is a running session of an app.
type LiveSession struct {
	service *Service
	app     *apps.App
	session *engine.Session
	logger  *slog.Logger

	mu     sync.Mutex
	record *storage.Session
	turn   atomic.Int64
}

// ID returns the session identifier.
func (l *LiveSession) ID() string {
	return l.session.ID()
}

// App returns the app the session runs.
func (l *LiveSession) App() *apps.App {
	return l.app
}

// Context returns the current monadic context.
func (l *LiveSession) Context() map[string]any {
	return l.session.Context()
}

// Transcript returns the record and the in-memory history.
func (l *LiveSession) Transcript() *Transcript {
	l.mu.Lock()
	record := *l.record
	l.mu.Unlock()
	record.Context = l.session.Context()
	return &Transcript{Session: &record, Turns: l.session.History()}
}

// Ask runs one turn, streaming events into sink, and persists the turns it
// produced. A failed turn is reported in Result.Err; the returned error is
// reserved for turns that could not be submitted or persisted.
func (l *LiveSession) Ask(ctx context.Context, input engine.Input, sink EventSink) (engine.Result, error) {
	turn := int(l.turn.Add(1))
	params := l.session.Params()
	emitter := NewEventEmitter(sink, l.ID(), turn, params.Monadic)
	emitter.EmitUserMessage(input.Text, len(input.Images))

	previous := l.session.Context()
	res, err := l.session.Ask(withEmitter(ctx, emitter), input, emitter.Handler())
	if err != nil {
		emitter.EmitError(aisdk.AsError(err), "")
		return engine.Result{}, err
	}

	// a cancelled turn still persists its partial output
	if err := l.persist(context.WithoutCancel(ctx), input.Text); err != nil {
		l.logger.Error("failed to persist transcript", "error", err)
		return res, err
	}

	if res.Err == nil {
		emitter.EmitTurnComplete(res.Text, res.FinishReason, res.Hops, previous, res.Context)
	}
	l.logger.Debug("turn finished", "turn", turn, "hops", res.Hops, "failed", res.Err != nil)
	return res, nil
}

func (l *LiveSession) persist(ctx context.Context, userText string) error {
	db := l.service.database
	history := l.session.History()
	current := l.session.Context()

	l.mu.Lock()
	defer l.mu.Unlock()

	title := l.record.Title
	if title == "" && userText != "" {
		title = ansi.Truncate(userText, titleWidth, "…")
	}

	if db != nil {
		err := db.WithTx(ctx, func(tx storage.ExecQuerier) error {
			if err := storage.SaveTranscript(ctx, tx, l.record.ID, history); err != nil {
				return err
			}
			if err := storage.UpdateSessionContext(ctx, tx, l.record.ID, current); err != nil {
				return err
			}
			if title != l.record.Title {
				return storage.UpdateSessionTitle(ctx, tx, l.record.ID, title)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	l.record.Title = title
	l.record.Context = current
	return nil
}
