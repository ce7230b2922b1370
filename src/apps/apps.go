// Package apps turns app configurations into session-ready bundles of
// parameters, tools and initial state.
package apps

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/apps/tools/tool_currenttime"
	"github.com/elee1766/chatmux/src/apps/tools/tool_fileinfo"
	"github.com/elee1766/chatmux/src/apps/tools/tool_grepfiles"
	"github.com/elee1766/chatmux/src/apps/tools/tool_listdir"
	"github.com/elee1766/chatmux/src/apps/tools/tool_readfile"
	"github.com/elee1766/chatmux/src/apps/tools/tool_sysinfo"
	"github.com/elee1766/chatmux/src/apps/tools/tool_webfetch"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
	"github.com/elee1766/chatmux/src/schema"
	"github.com/spf13/afero"
	"github.com/swaggest/jsonschema-go"
)

// App is an app configuration resolved against a toolbox.
type App struct {
	Name          string
	Description   string
	Vendor        string
	Params        aisdk.Parameters
	Tools         *agent.Toolbox
	ContextSchema *jsonschema.Schema
	InitialPrompt string
	// InitialContext seeds the monadic context of new sessions
	InitialContext map[string]any
}

// ToolboxOptions configures the built-in tools.
type ToolboxOptions struct {
	Tools       config.ToolsConfig
	Permissions *config.PermissionChecker
	// Fs backs the file tools; the OS filesystem when nil
	Fs          afero.Fs
	HTTPClient  *http.Client
	Logger      *slog.Logger
	ToolTimeout time.Duration
	// Now backs current_time
	Now func() time.Time
}

// NewBuiltinToolbox registers every built-in tool plus the logging and
// timeout middleware.
func NewBuiltinToolbox(opts ToolboxOptions) (*agent.Toolbox, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Permissions == nil {
		opts.Permissions = config.NewPermissionChecker(&opts.Tools)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	toolsutil.SetLogger(opts.Logger)

	constructors := []func() (agent.Tool, error){
		func() (agent.Tool, error) { return tool_currenttime.Tool(opts.Now) },
		func() (agent.Tool, error) {
			return tool_readfile.Tool(opts.Fs, opts.Permissions, opts.Tools.FileSystem.MaxFileSize)
		},
		func() (agent.Tool, error) { return tool_listdir.Tool(opts.Fs, opts.Permissions) },
		func() (agent.Tool, error) { return tool_fileinfo.Tool(opts.Fs, opts.Permissions) },
		func() (agent.Tool, error) {
			return tool_grepfiles.Tool(opts.Fs, opts.Permissions, opts.Tools.FileSystem.MaxFileSize)
		},
		func() (agent.Tool, error) {
			return tool_webfetch.Tool(tool_webfetch.Options{
				Client:          opts.HTTPClient,
				Permissions:     opts.Permissions,
				MaxResponseSize: opts.Tools.Network.MaxResponseSize,
				UserAgent:       opts.Tools.UserAgent,
			})
		},
		tool_sysinfo.Tool,
	}

	tb := agent.NewToolbox()
	for _, build := range constructors {
		tool, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build tool: %w", err)
		}
		if err := tb.RegisterTool(tool); err != nil {
			return nil, err
		}
	}

	tb.RegisterMiddleware(agent.LoggingMiddleware(opts.Logger.With("component", "tools")))
	if opts.ToolTimeout > 0 {
		tb.RegisterMiddleware(agent.TimeoutMiddleware(opts.ToolTimeout))
	}
	return tb, nil
}

// Build resolves cfg against toolbox. Only the tools the app names are
// exposed to the model.
func Build(cfg config.AppConfig, toolbox *agent.Toolbox) (*App, error) {
	if cfg.Strict && !cfg.Monadic {
		return nil, fmt.Errorf("app %s: strict mode requires monadic mode", cfg.Name)
	}

	tools, err := toolbox.Subset(cfg.Tools...)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", cfg.Name, err)
	}

	var contextSchema *jsonschema.Schema
	if cfg.ContextSchema != nil {
		contextSchema, err = schema.FromValue(cfg.ContextSchema)
		if err != nil {
			return nil, fmt.Errorf("app %s: context schema: %w", cfg.Name, err)
		}
	}

	params := aisdk.Parameters{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		MaxTokens:        cfg.MaxTokens,
		ContextSize:      cfg.ContextSize,
		Monadic:          cfg.Monadic,
		Strict:           cfg.Strict,
		Tools:            tools.Definitions(),
		MaxFuncCallDepth: cfg.MaxFuncCallDepth,
	}

	return &App{
		Name:           cfg.Name,
		Description:    cfg.Description,
		Vendor:         cfg.Vendor,
		Params:         params,
		Tools:          tools,
		ContextSchema:  contextSchema,
		InitialPrompt:  cfg.InitialPrompt,
		InitialContext: maps.Clone(cfg.InitialContext),
	}, nil
}
