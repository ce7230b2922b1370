package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

const sessionColumns = `id, app, vendor, model, title, params, context, created_at, updated_at`

// GetSessionByID retrieves a session by its ID
func GetSessionByID(ctx context.Context, db sqlscan.Querier, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	var s Session
	err := sqlscan.Get(ctx, db, &s, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &s, nil
}

// GetLatestSession retrieves the most recently updated session, limited to
// app when it is not empty.
func GetLatestSession(ctx context.Context, db sqlscan.Querier, app string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE (? = '' OR app = ?) ORDER BY updated_at DESC LIMIT 1`
	var s Session
	err := sqlscan.Get(ctx, db, &s, query, app, app)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No sessions exist
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns up to limit sessions, newest first.
func ListSessions(ctx context.Context, db sqlscan.Querier, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC LIMIT ?`
	var sessions []Session
	if err := sqlscan.Select(ctx, db, &sessions, query, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession creates a new session in the database
func CreateSession(ctx context.Context, db Execer, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Params == nil {
		session.Params = JSONObject{}
	}
	if session.Context == nil {
		session.Context = JSONObject{}
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	query := `INSERT INTO sessions (id, app, vendor, model, title, params, context, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, session.ID, session.App, session.Vendor, session.Model, session.Title,
		session.Params, session.Context, session.CreatedAt, session.UpdatedAt)
	return err
}

// UpdateSessionContext replaces the stored monadic context.
func UpdateSessionContext(ctx context.Context, db Execer, sessionID string, value map[string]any) error {
	query := `UPDATE sessions SET context = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, JSONObject(value), time.Now(), sessionID)
	return err
}

// UpdateSessionTitle sets the display title of a session.
func UpdateSessionTitle(ctx context.Context, db Execer, sessionID, title string) error {
	query := `UPDATE sessions SET title = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, title, sessionID)
	return err
}

// DeleteSession removes a session and its turns.
func DeleteSession(ctx context.Context, db Execer, sessionID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// ListTurns returns every stored turn of a session in order, inactive ones
// included.
func ListTurns(ctx context.Context, db sqlscan.Querier, sessionID string) ([]Turn, error) {
	query := `SELECT id, session_id, seq, role, content, images, tool_call_id, tool_name, tool_calls, active, created_at FROM turns WHERE session_id = ? ORDER BY seq`
	var turns []Turn
	if err := sqlscan.Select(ctx, db, &turns, query, sessionID); err != nil {
		return nil, err
	}
	return turns, nil
}

// LoadHistory returns the session's turns as protocol turns.
func LoadHistory(ctx context.Context, db sqlscan.Querier, sessionID string) ([]aisdk.Turn, error) {
	stored, err := ListTurns(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]aisdk.Turn, 0, len(stored))
	for i := range stored {
		t, err := stored[i].AITurn()
		if err != nil {
			return nil, err
		}
		history = append(history, t)
	}
	return history, nil
}

// CreateTurn inserts a single turn.
func CreateTurn(ctx context.Context, db Execer, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	query := `INSERT INTO turns (id, session_id, seq, role, content, images, tool_call_id, tool_name, tool_calls, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, turn.ID, turn.SessionID, turn.Seq, turn.Role, turn.Content, turn.Images,
		turn.ToolCallID, turn.ToolName, turn.ToolCalls, turn.Active, turn.CreatedAt)
	return err
}

// SaveTranscript brings the stored transcript in line with history. History
// only grows, so turns past the stored count are inserted; earlier turns only
// have their active flag updated. Run it inside WithTx.
func SaveTranscript(ctx context.Context, db ExecQuerier, sessionID string, history []aisdk.Turn) error {
	var stored []struct {
		Seq    int  `db:"seq"`
		Active bool `db:"active"`
	}
	if err := sqlscan.Select(ctx, db, &stored, `SELECT seq, active FROM turns WHERE session_id = ? ORDER BY seq`, sessionID); err != nil {
		return fmt.Errorf("failed to read stored turns: %w", err)
	}
	if len(stored) > len(history) {
		return fmt.Errorf("session %s has %d stored turns but history has %d", sessionID, len(stored), len(history))
	}

	for _, s := range stored {
		if s.Seq >= len(history) || history[s.Seq].Active == s.Active {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE turns SET active = ? WHERE session_id = ? AND seq = ?`,
			history[s.Seq].Active, sessionID, s.Seq); err != nil {
			return fmt.Errorf("failed to update turn %d: %w", s.Seq, err)
		}
	}

	for seq := len(stored); seq < len(history); seq++ {
		turn, err := NewTurn(sessionID, seq, history[seq])
		if err != nil {
			return err
		}
		if err := CreateTurn(ctx, db, turn); err != nil {
			return fmt.Errorf("failed to insert turn %d: %w", seq, err)
		}
	}

	_, err := db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), sessionID)
	return err
}
