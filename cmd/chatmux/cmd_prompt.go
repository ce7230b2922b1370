package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/executor"
)

// PromptCmd represents the single prompt command
type PromptCmd struct {
	Text      []string `arg:"" optional:"" help:"The prompt text, or - to read stdin"`
	App       string   `short:"a" help:"App to run (defaults to the configured default app)"`
	SessionID string   `short:"s" name:"session" help:"Continue a stored session by ID"`
	Resume    bool     `short:"r" help:"Continue the app's most recent session"`
	Image     []string `short:"i" help:"Image file or URL to attach (repeatable)"`

	OutputFlags `embed:""`
}

func (p *PromptCmd) Run(ctx context.Context, cli *CLI) error {
	text, err := promptText(p.Text, os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read prompt: %w", err)
	}
	if text == "" && len(p.Image) == 0 {
		return fmt.Errorf("prompt text is required")
	}

	images, err := imageRefs(p.Image)
	if err != nil {
		return err
	}

	rt, err := cli.setup()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.openEngine(cli); err != nil {
		return err
	}

	app, err := rt.buildApp(p.App)
	if err != nil {
		return err
	}
	live, err := rt.service.StartSession(ctx, executor.StartOptions{
		App:       app,
		SessionID: p.SessionID,
		Resume:    p.Resume,
	})
	if err != nil {
		return err
	}

	sink := executor.NewChannelEventSink(rt.logger, 64, p.processor(cli, os.Stdout))
	res, err := live.Ask(ctx, engine.Input{Text: text, Images: images}, sink)
	if closeErr := sink.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	rt.logger.Info("prompt finished", "session", live.ID(), "hops", res.Hops, "finish_reason", res.FinishReason)
	return nil
}

// imageRefs keeps URLs as references and inlines local files.
func imageRefs(sources []string) ([]aisdk.ImageRef, error) {
	var out []aisdk.ImageRef
	for _, src := range sources {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			out = append(out, aisdk.ImageRef{URL: src})
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		out = append(out, aisdk.NewImageRef(data, "", filepath.Base(src)))
	}
	return out, nil
}
