package main

import (
	"io"
	"os"
	"strings"

	"github.com/elee1766/chatmux/src/executor"
	"github.com/elee1766/chatmux/src/theme"
)

// OutputFlags select how a turn is printed.
type OutputFlags struct {
	Raw         bool `help:"Print only the final answer"`
	JSON        bool `name:"json" help:"Print events as JSON lines"`
	NoStream    bool `help:"Print the answer once it is complete"`
	Quiet       bool `short:"q" help:"Hide tool arguments and results"`
	ShowContext bool `help:"Show changes to the monadic context after each turn"`
}

// processor builds the printer for a turn's events.
func (f OutputFlags) processor(cli *CLI, out io.Writer) executor.EventProcessor {
	if f.JSON {
		return executor.NewJSONLinesProcessor(out)
	}
	return executor.NewConsoleEventProcessor(out, executor.ConsoleProcessorConfig{
		ShowToolArguments: !f.Quiet,
		ShowToolResults:   !f.Quiet,
		ShowContext:       f.ShowContext,
		Color:             out == os.Stdout && cli.colorEnabled(),
		RawMode:           f.Raw,
		StreamMode:        !f.NoStream,
		Theme:             theme.CurrentTheme,
	})
}

// promptText joins positional words, or reads stdin when the only word is "-".
func promptText(words []string, in io.Reader) (string, error) {
	if len(words) == 1 && words[0] == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.TrimSpace(strings.Join(words, " ")), nil
}
