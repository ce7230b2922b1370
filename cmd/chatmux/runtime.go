package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/elee1766/chatmux/src/anthropic"
	"github.com/elee1766/chatmux/src/apps"
	"github.com/elee1766/chatmux/src/config"
	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/executor"
	"github.com/elee1766/chatmux/src/ollama"
	"github.com/elee1766/chatmux/src/orclient"
	"github.com/elee1766/chatmux/src/ratelimit"
	"github.com/elee1766/chatmux/src/retry"
	"github.com/elee1766/chatmux/src/storage"
	"github.com/elee1766/chatmux/src/theme"
	"golang.org/x/term"
)

// defaultListTimeout bounds model listing requests.
const defaultListTimeout = 30 * time.Second

// runtime is everything a command needs, built from the CLI flags and the
// loaded configuration.
type runtime struct {
	manager *config.Manager
	logger  *slog.Logger
	closers []io.Closer

	db      *storage.DB
	vendors *engine.Registry
	engine  *engine.Engine
	service *executor.Service
}

func (r *runtime) Close() {
	if r.service != nil {
		r.service.CloseAll()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i].Close()
	}
}

// loadConfig loads the configuration, honoring --config.
func (cli *CLI) loadConfig() (*config.Manager, error) {
	precedence := config.GetConfigPaths()
	if cli.ConfigFile != "" {
		precedence.UserConfig = cli.ConfigFile
	}
	mgr, err := config.NewManager(precedence)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return mgr, nil
}

// setup loads config and logging only. Commands that talk to vendors or
// storage call the open* methods they need.
func (cli *CLI) setup() (*runtime, error) {
	mgr, err := cli.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := mgr.GetConfig()

	level := cli.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logFile := cli.LogFile
	if logFile == "" {
		logFile = cfg.Logging.File
	}
	logger, closer, err := newLogger(level, logFile, cli.NoColor)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	theme.SetTheme(theme.ByName(cli.Theme))

	return &runtime{manager: mgr, logger: logger, closers: []io.Closer{closer}}, nil
}

// openDB opens the transcript database unless storage is disabled.
func (r *runtime) openDB(cli *CLI) error {
	cfg := r.manager.GetConfig()
	if cli.NoDB || cfg.Storage.Disabled {
		r.logger.Debug("storage disabled, sessions are memory-only")
		return nil
	}
	path := cli.DB
	if path == "" {
		path = cfg.DatabasePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", path, err)
	}
	r.db = db
	r.closers = append(r.closers, db)
	return nil
}

// openEngine builds the vendor registry, the engine and the session service.
func (r *runtime) openEngine(cli *CLI) error {
	if err := r.openDB(cli); err != nil {
		return err
	}
	cfg := r.manager.GetConfig()

	vendors, err := buildVendors(cfg.Vendors, r.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	r.vendors = vendors

	var limiter *ratelimit.Tracker
	if cfg.RateLimit.Limit > 0 {
		limiter = ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Limit, cfg.RateLimit.Window.Std())
	}
	r.engine = engine.New(engine.Config{
		HTTPClient: engine.NewHTTPClient(cfg.Engine.ConnectTimeout.Std()),
		Retry: &retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay.Std(),
			MaxDelay:    cfg.Retry.MaxDelay.Std(),
			Backoff:     retry.Backoff(cfg.Retry.Backoff),
		},
		Limiter:        limiter,
		Logger:         r.logger,
		ConnectTimeout: cfg.Engine.ConnectTimeout.Std(),
		ReadTimeout:    cfg.Engine.ReadTimeout.Std(),
		TurnTimeout:    cfg.Engine.TurnTimeout.Std(),
		QueueSize:      cfg.Engine.QueueSize,
	})

	r.service, err = executor.NewService(executor.ServiceConfig{
		Engine:   r.engine,
		Vendors:  vendors,
		Database: r.db,
		Logger:   r.logger,
	})
	return err
}

// buildApp resolves the named app (the default app when empty) against the
// built-in toolbox.
func (r *runtime) buildApp(name string) (*apps.App, error) {
	cfg := r.manager.GetConfig()
	appCfg, err := r.manager.App(name)
	if err != nil {
		return nil, err
	}
	toolbox, err := apps.NewBuiltinToolbox(apps.ToolboxOptions{
		Tools:       cfg.Tools,
		Permissions: r.manager.GetPermissionChecker(),
		Logger:      r.logger,
		ToolTimeout: cfg.Engine.ToolTimeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	return apps.Build(appCfg, toolbox)
}

// buildVendors registers one adapter per configured vendor.
func buildVendors(configs map[string]config.VendorConfig, logger *slog.Logger) (*engine.Registry, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	listClient := &http.Client{Timeout: defaultListTimeout}
	registry, _ := engine.NewRegistry()
	for _, name := range names {
		vc := configs[name]
		var vendor engine.Vendor
		switch vc.Type {
		case config.VendorOpenAI:
			vendor = orclient.NewClient(orclient.Config{
				Name:       name,
				APIKey:     vc.ResolveAPIKey(),
				BaseURL:    vc.BaseURL,
				SiteURL:    vc.SiteURL,
				SiteName:   vc.SiteName,
				Headers:    vc.Headers,
				Logger:     logger,
				HTTPClient: listClient,
			})
		case config.VendorAnthropic:
			vendor = anthropic.NewClient(anthropic.Config{
				Name:       name,
				APIKey:     vc.ResolveAPIKey(),
				BaseURL:    vc.BaseURL,
				Version:    vc.APIVersion,
				MaxTokens:  vc.MaxTokens,
				Headers:    vc.Headers,
				Logger:     logger,
				HTTPClient: listClient,
			})
		case config.VendorOllama:
			vendor = ollama.NewClient(ollama.Config{
				Name:       name,
				BaseURL:    vc.BaseURL,
				KeepAlive:  vc.KeepAlive,
				Headers:    vc.Headers,
				Logger:     logger,
				HTTPClient: listClient,
			})
		default:
			return nil, fmt.Errorf("vendor %s: unsupported type %q", name, vc.Type)
		}
		if err := registry.Register(vendor); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// colorEnabled reports whether stdout should get styles.
func (cli *CLI) colorEnabled() bool {
	return !cli.NoColor && term.IsTerminal(int(os.Stdout.Fd()))
}
