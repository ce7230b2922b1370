package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chatmux.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatmux.db")
	db, err := Open(path)
	require.NoError(t, err)

	versions, err := db.AppliedVersions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	applied, err := db.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	versions, err = db.AppliedVersions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)
}

func TestExtractUpMigration(t *testing.T) {
	content := `-- +goose Up
-- +goose StatementBegin
CREATE TABLE a (id TEXT);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
DROP TABLE a;
-- +goose StatementEnd
`
	assert.Equal(t, "CREATE TABLE a (id TEXT);", extractUpMigration(content))
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first := &Session{App: "helper", Vendor: "openrouter", Model: "gpt-4o", CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, CreateSession(ctx, db.DB(), first))
	assert.NotEmpty(t, first.ID)

	second := &Session{App: "counter", Vendor: "ollama", Model: "llama3.2", Params: JSONObject{"context_size": float64(4)}}
	require.NoError(t, CreateSession(ctx, db.DB(), second))

	got, err := GetSessionByID(ctx, db.DB(), second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "counter", got.App)
	assert.Equal(t, JSONObject{"context_size": float64(4)}, got.Params)
	assert.Equal(t, JSONObject{}, got.Context)

	missing, err := GetSessionByID(ctx, db.DB(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	latest, err := GetLatestSession(ctx, db.DB(), "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	latest, err = GetLatestSession(ctx, db.DB(), "helper")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	require.NoError(t, UpdateSessionContext(ctx, db.DB(), first.ID, map[string]any{"count": 3}))
	require.NoError(t, UpdateSessionTitle(ctx, db.DB(), first.ID, "counting"))
	got, err = GetSessionByID(ctx, db.DB(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, JSONObject{"count": float64(3)}, got.Context)
	assert.Equal(t, "counting", got.Title)

	sessions, err := ListSessions(ctx, db.DB(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)

	require.NoError(t, DeleteSession(ctx, db.DB(), first.ID))
	sessions, err = ListSessions(ctx, db.DB(), 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSaveTranscript(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sess := &Session{Vendor: "openrouter"}
	require.NoError(t, CreateSession(ctx, db.DB(), sess))

	history := []aisdk.Turn{
		{Role: aisdk.RoleSystem, Text: "be brief", Active: true},
		{Role: aisdk.RoleUser, Text: "what is in this?", Active: true, Images: []aisdk.ImageRef{{MimeType: "image/png", Data: "iVBO"}}},
		{Role: aisdk.RoleAssistant, Active: true, ToolCalls: []aisdk.ToolCallRequest{
			{ID: "call_1", Name: "current_time", Arguments: json.RawMessage(`{"tz":"UTC"}`)},
		}},
		{Role: aisdk.RoleTool, Text: "noon", Name: "current_time", ToolCallID: "call_1", Active: true},
		{Role: aisdk.RoleAssistant, Text: "a cat at noon", Active: true},
	}
	save := func(h []aisdk.Turn) {
		require.NoError(t, db.WithTx(ctx, func(tx ExecQuerier) error {
			return SaveTranscript(ctx, tx, sess.ID, h)
		}))
	}
	save(history)

	// the window moves on: old turns go inactive and new ones arrive
	history[1].Active = false
	history[2].Active = false
	history = append(history,
		aisdk.Turn{Role: aisdk.RoleUser, Text: "thanks", Active: true},
		aisdk.Turn{Role: aisdk.RoleAssistant, Text: "welcome", Active: true},
	)
	save(history)
	// saving again changes nothing
	save(history)

	stored, err := ListTurns(ctx, db.DB(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 7)
	for i, turn := range stored {
		assert.Equal(t, i, turn.Seq)
	}

	loaded, err := LoadHistory(ctx, db.DB(), sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 7)
	for i := range loaded {
		assert.Equal(t, history[i].Role, loaded[i].Role, "turn %d", i)
		assert.Equal(t, history[i].Text, loaded[i].Text, "turn %d", i)
		assert.Equal(t, history[i].Active, loaded[i].Active, "turn %d", i)
	}
	assert.Equal(t, history[1].Images, loaded[1].Images)
	require.Len(t, loaded[2].ToolCalls, 1)
	assert.Equal(t, "call_1", loaded[2].ToolCalls[0].ID)
	assert.JSONEq(t, `{"tz":"UTC"}`, string(loaded[2].ToolCalls[0].Arguments))
	assert.Equal(t, "current_time", loaded[3].Name)
	assert.Equal(t, "call_1", loaded[3].ToolCallID)
	assert.Nil(t, loaded[4].ToolCalls)
}

func TestSaveTranscriptRejectsShorterHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sess := &Session{Vendor: "ollama"}
	require.NoError(t, CreateSession(ctx, db.DB(), sess))
	require.NoError(t, SaveTranscript(ctx, db.DB(), sess.ID, []aisdk.Turn{
		{Role: aisdk.RoleSystem, Active: true},
		{Role: aisdk.RoleUser, Text: "hi", Active: true},
	}))
	err := SaveTranscript(ctx, db.DB(), sess.ID, []aisdk.Turn{{Role: aisdk.RoleSystem, Active: true}})
	assert.Error(t, err)
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sess := &Session{Vendor: "ollama"}
	require.NoError(t, CreateSession(ctx, db.DB(), sess))
	require.NoError(t, SaveTranscript(ctx, db.DB(), sess.ID, []aisdk.Turn{{Role: aisdk.RoleSystem, Active: true}}))
	require.NoError(t, DeleteSession(ctx, db.DB(), sess.ID))

	turns, err := ListTurns(ctx, db.DB(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestJSONObjectScan(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  JSONObject
		err   bool
	}{
		{"nil", nil, JSONObject{}, false},
		{"empty string", "", JSONObject{}, false},
		{"null", "null", JSONObject{}, false},
		{"string", `{"a":1}`, JSONObject{"a": float64(1)}, false},
		{"bytes", []byte(`{"b":"x"}`), JSONObject{"b": "x"}, false},
		{"array", `[1]`, nil, true},
		{"int", 5, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got JSONObject
			err := got.Scan(tt.input)
			if (err != nil) != tt.err {
				t.Fatalf("Scan() error = %v, wantErr %v", err, tt.err)
			}
			if !tt.err {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
