package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file (replaces the user config)"`
	DB         string `type:"path" help:"Database path (defaults to config)"`
	NoDB       bool   `name:"no-db" help:"Keep sessions in memory only"`
	LogLevel   string `help:"Log level (debug, info, warn, error)"`
	LogFile    string `type:"path" help:"Write JSON logs to this file instead of stderr"`
	NoColor    bool   `env:"NO_COLOR" help:"Disable colors"`
	Theme      string `default:"auto" enum:"auto,dark,light" help:"Console theme"`

	Chat    ChatCmd    `cmd:"" default:"1" help:"Chat with an app (default)"`
	Prompt  PromptCmd  `cmd:"" help:"Run a single turn"`
	Apps    AppsCmd    `cmd:"" help:"List the app catalog"`
	Models  ModelsCmd  `cmd:"" help:"List the models a vendor offers"`
	History HistoryCmd `cmd:"" help:"Stored sessions and transcripts"`
	Migrate MigrateCmd `cmd:"" help:"Database migrations"`
	Config  ConfigCmd  `cmd:"" help:"Inspect the configuration"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("chatmux"),
		kong.Description("Streaming chat with any model vendor, tools and monadic state"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	// chat watches interrupts itself and does not use ctx for turns
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli)
	if err != nil {
		stop()
		os.Exit(HandleError(os.Stderr, err))
	}
}
