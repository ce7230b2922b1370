package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/executor"
)

// ChatCmd runs an interactive session. Ctrl-C cancels the turn in flight;
// at the prompt it exits.
type ChatCmd struct {
	App       string `short:"a" help:"App to run (defaults to the configured default app)"`
	SessionID string `short:"s" name:"session" help:"Continue a stored session by ID"`
	Resume    bool   `short:"r" help:"Continue the app's most recent session"`

	OutputFlags `embed:""`
}

const chatHelp = `commands:
  /context   print the monadic context
  /history   print the transcript
  /session   print the session id
  /quit      leave (the session stays stored)
`

func (c *ChatCmd) Run(cli *CLI) error {
	rt, err := cli.setup()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.openEngine(cli); err != nil {
		return err
	}

	app, err := rt.buildApp(c.App)
	if err != nil {
		return err
	}
	live, err := rt.service.StartSession(context.Background(), executor.StartOptions{
		App:       app,
		SessionID: c.SessionID,
		Resume:    c.Resume,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s (session %s), /help for commands\n", app.Name, live.ID())

	loop := &chatLoop{
		live:      live,
		processor: c.processor(cli, os.Stdout),
		logger:    rt.logger,
		out:       os.Stdout,
	}
	return loop.run(os.Stdin)
}

type chatLoop struct {
	live      *executor.LiveSession
	processor executor.EventProcessor
	logger    *slog.Logger
	out       io.Writer
}

func (l *chatLoop) run(in io.Reader) error {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(l.out, "> ")
		var line string
		select {
		case <-interrupts:
			fmt.Fprintln(l.out)
			return nil
		case text, ok := <-lines:
			if !ok {
				fmt.Fprintln(l.out)
				return nil
			}
			line = strings.TrimSpace(text)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := l.command(line)
			if err != nil {
				fmt.Fprintf(l.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		// turn failures were already printed by the processor
		if err := l.ask(line, interrupts); err != nil {
			fmt.Fprintf(l.out, "error: %v\n", err)
		}
	}
}

// ask runs one turn; an interrupt while it runs cancels only the turn.
func (l *chatLoop) ask(text string, interrupts <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-done:
		}
	}()
	defer close(done)

	// a sink per turn, so the turn is fully printed before the next prompt
	sink := executor.NewChannelEventSink(l.logger, 64, l.processor)
	_, err := l.live.Ask(ctx, engine.Input{Text: text}, sink)
	if closeErr := sink.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (l *chatLoop) command(line string) (quit bool, err error) {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(l.out, chatHelp)
	case "/session":
		fmt.Fprintln(l.out, l.live.ID())
	case "/context":
		b, err := json.MarshalIndent(l.live.Context(), "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Fprintln(l.out, string(b))
	case "/history":
		return false, l.live.Transcript().WriteText(l.out)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", line)
	}
	return false, nil
}
