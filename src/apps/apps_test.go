package apps

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolbox(t *testing.T) (*agent.Toolbox, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := config.DefaultConfig()
	cfg.Tools.FileSystem.Root = "/work"
	tb, err := NewBuiltinToolbox(ToolboxOptions{
		Tools:       cfg.Tools,
		Fs:          fs,
		ToolTimeout: time.Second,
		Now:         func() time.Time { return time.Unix(0, 0) },
	})
	require.NoError(t, err)
	return tb, fs
}

func TestBuiltinToolbox(t *testing.T) {
	tb, _ := newTestToolbox(t)
	assert.Equal(t, []string{"current_time", "get_file_info", "grep_files", "list_directory", "read_file", "system_info", "web_fetch"}, tb.Names())
	for _, def := range tb.Definitions() {
		assert.NotEmpty(t, def.Description, def.Name)
		assert.NotNil(t, def.Parameters, def.Name)
	}
}

func TestDefaultAppsBuild(t *testing.T) {
	tb, _ := newTestToolbox(t)
	for name, cfg := range config.DefaultApps() {
		cfg.Name = name
		app, err := Build(cfg, tb)
		require.NoError(t, err, name)
		assert.ElementsMatch(t, cfg.Tools, app.Tools.Names(), name)
		assert.Len(t, app.Params.Tools, len(cfg.Tools), name)
	}
}

func TestBuild(t *testing.T) {
	tb, fs := newTestToolbox(t)
	require.NoError(t, afero.WriteFile(fs, "/work/notes.txt", []byte("remember the milk"), 0o644))

	temp := 0.2
	cfg := config.AppConfig{
		Name:             "counter",
		Vendor:           "openrouter",
		Model:            "test-model",
		Temperature:      &temp,
		ContextSize:      6,
		Monadic:          true,
		Strict:           true,
		Tools:            []string{"read_file"},
		InitialPrompt:    "Count things.",
		MaxFuncCallDepth: 3,
		ContextSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"count": map[string]any{"type": "integer"}},
			"required":   []any{"count"},
		},
		InitialContext: map[string]any{"count": 0},
	}

	app, err := Build(cfg, tb)
	require.NoError(t, err)
	assert.Equal(t, "counter", app.Name)
	assert.Equal(t, "openrouter", app.Vendor)
	assert.Equal(t, "Count things.", app.InitialPrompt)
	assert.Equal(t, map[string]any{"count": 0}, app.InitialContext)

	assert.Equal(t, aisdk.Parameters{
		Model:            "test-model",
		Temperature:      &temp,
		ContextSize:      6,
		Monadic:          true,
		Strict:           true,
		Tools:            app.Tools.Definitions(),
		MaxFuncCallDepth: 3,
	}, app.Params)

	require.NotNil(t, app.ContextSchema)
	assert.Equal(t, []string{"count"}, app.ContextSchema.Required)

	// the app's toolbox only resolves the tools it names
	_, ok := app.Tools.Lookup("web_fetch")
	assert.False(t, ok)

	dispatcher := agent.NewDispatcher(nil)
	args, _ := json.Marshal(map[string]any{"path": "notes.txt"})
	result := dispatcher.Dispatch(context.Background(), aisdk.ToolCallRequest{ID: "call_1", Name: "read_file", Arguments: args}, app.Tools)
	assert.Contains(t, result.Content, "remember the milk")
}

func TestBuildErrors(t *testing.T) {
	tb, _ := newTestToolbox(t)

	_, err := Build(config.AppConfig{Name: "x", Tools: []string{"shell"}}, tb)
	assert.ErrorContains(t, err, "tool shell not found")

	_, err = Build(config.AppConfig{Name: "x", Strict: true}, tb)
	assert.ErrorContains(t, err, "strict mode requires monadic mode")
}
