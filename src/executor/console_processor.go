package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/x/ansi"
	"github.com/elee1766/chatmux/src/theme"
)

// ConsoleProcessorConfig configures the console event processor
type ConsoleProcessorConfig struct {
	ShowToolArguments bool
	ShowToolResults   bool
	// ShowContext prints the monadic context as a diff against the previous turn
	ShowContext bool
	// Color enables styles and JSON highlighting
	Color bool
	// RawMode prints only final answers, unstyled
	RawMode bool
	// StreamMode prints fragments as they arrive
	StreamMode       bool
	MaxResultPreview int
	Theme            theme.Theme
}

// ConsoleEventProcessor processes events and outputs to a terminal
type ConsoleEventProcessor struct {
	out    io.Writer
	config ConsoleProcessorConfig
	styles theme.Styles

	// streamed is set once a fragment of the current turn has been printed
	streamed bool
}

// NewConsoleEventProcessor creates a new console event processor
func NewConsoleEventProcessor(out io.Writer, config ConsoleProcessorConfig) *ConsoleEventProcessor {
	if config.MaxResultPreview == 0 {
		config.MaxResultPreview = 200
	}
	if config.Theme.ChromaStyle == "" {
		config.Theme = theme.CurrentTheme
	}

	return &ConsoleEventProcessor{
		out:    out,
		config: config,
		styles: config.Theme.Styles(),
	}
}

// Process handles a single event
func (p *ConsoleEventProcessor) Process(event ConversationEvent) error {
	if p.config.RawMode {
		switch e := event.(type) {
		case *TurnCompleteEvent:
			_, err := fmt.Fprintln(p.out, e.Message)
			return err
		case *ErrorEvent:
			_, err := fmt.Fprintf(p.out, "error: %s: %s\n", e.Kind, e.Message)
			return err
		}
		return nil
	}

	switch e := event.(type) {
	case *UserMessageEvent:
		p.streamed = false

	case *AssistantStreamChunkEvent:
		if p.config.StreamMode && !e.Structured {
			p.streamed = true
			fmt.Fprint(p.out, e.Content)
		}

	case *ToolCallRequestEvent:
		p.processToolCallRequest(e)

	case *ToolCallResponseEvent:
		p.processToolCallResponse(e)

	case *ToolCallErrorEvent:
		p.printf("   %s", p.style(p.styles.Error, "✗ tool failed: "+e.Error))
		p.printDuration(e.Duration)

	case *TurnCompleteEvent:
		p.processTurnComplete(e)

	case *ErrorEvent:
		if p.streamed {
			fmt.Fprintln(p.out)
		}
		p.printf("%s\n", p.style(p.styles.Error, fmt.Sprintf("error (%s): %s", e.Kind, e.Message)))
	}

	return nil
}

// Close cleans up resources
func (p *ConsoleEventProcessor) Close() error {
	return nil
}

func (p *ConsoleEventProcessor) processToolCallRequest(e *ToolCallRequestEvent) {
	if p.streamed {
		fmt.Fprintln(p.out)
		p.streamed = false
	}
	p.printf("%s\n", p.style(p.styles.Tool, "🔧 "+e.ToolCall.Name))

	if p.config.ShowToolArguments {
		args := e.ToolCall.ArgumentsOrEmpty()
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, args, "   ", "  "); err == nil {
			p.printf("   %s\n", p.highlight(pretty.String()))
		} else {
			p.printf("   %s\n", args)
		}
	}
}

func (p *ConsoleEventProcessor) processToolCallResponse(e *ToolCallResponseEvent) {
	p.printf("   %s", p.style(p.styles.Success, "✓ "+e.ToolName))
	p.printDuration(e.Duration)

	if p.config.ShowToolResults && e.Content != "" {
		preview := strings.Join(strings.Fields(e.Content), " ")
		preview = ansi.Truncate(preview, p.config.MaxResultPreview, "…")
		p.printf("   %s\n", p.style(p.styles.Muted, preview))
	}
}

func (p *ConsoleEventProcessor) processTurnComplete(e *TurnCompleteEvent) {
	if p.streamed {
		fmt.Fprintln(p.out)
	} else {
		fmt.Fprintln(p.out, e.Message)
	}
	p.streamed = false

	if p.config.ShowContext && e.Monadic {
		if diff := ContextDiff(e.PreviousContext, e.Context); diff != "" {
			p.printf("%s\n", p.style(p.styles.Title, "context"))
			for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
				p.printf("%s\n", p.diffLine(line))
			}
		}
	}
}

// ContextDiff renders a unified diff of two monadic contexts, or "" when
// they are equal.
func ContextDiff(previous, current map[string]any) string {
	return udiff.Unified("previous", "current", indentJSON(previous), indentJSON(current))
}

func indentJSON(v map[string]any) string {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v\n", v)
	}
	return string(b) + "\n"
}

func (p *ConsoleEventProcessor) diffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return p.style(p.styles.Muted, line)
	case strings.HasPrefix(line, "+"):
		return p.style(p.styles.Add, line)
	case strings.HasPrefix(line, "-"):
		return p.style(p.styles.Remove, line)
	}
	return line
}

func (p *ConsoleEventProcessor) highlight(src string) string {
	if !p.config.Color {
		return src
	}
	var b strings.Builder
	if err := quick.Highlight(&b, src, "json", "terminal256", p.config.Theme.ChromaStyle); err != nil {
		return src
	}
	return b.String()
}

func (p *ConsoleEventProcessor) style(s interface{ Render(...string) string }, text string) string {
	if !p.config.Color {
		return text
	}
	return s.Render(text)
}

func (p *ConsoleEventProcessor) printDuration(d time.Duration) {
	if d > 0 {
		p.printf(" %s", p.style(p.styles.Muted, fmt.Sprintf("(%v)", d.Round(10*time.Millisecond))))
	}
	fmt.Fprintln(p.out)
}

func (p *ConsoleEventProcessor) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}
