// Package theme holds the console palette.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme is a console color palette plus the chroma style used for JSON.
type Theme struct {
	Primary    lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Warning    lipgloss.Color
	DiffAdd    lipgloss.Color
	DiffRemove lipgloss.Color
	// ChromaStyle names the syntax highlighting style
	ChromaStyle string
}

var Dark = Theme{
	Primary:     lipgloss.Color("#7aa2f7"),
	Text:        lipgloss.Color("#c0caf5"),
	TextMuted:   lipgloss.Color("#565f89"),
	Success:     lipgloss.Color("#9ece6a"),
	Error:       lipgloss.Color("#f7768e"),
	Warning:     lipgloss.Color("#e0af68"),
	DiffAdd:     lipgloss.Color("#9ece6a"),
	DiffRemove:  lipgloss.Color("#f7768e"),
	ChromaStyle: "monokai",
}

var Light = Theme{
	Primary:     lipgloss.Color("#2e7de9"),
	Text:        lipgloss.Color("#3760bf"),
	TextMuted:   lipgloss.Color("#848cb5"),
	Success:     lipgloss.Color("#587539"),
	Error:       lipgloss.Color("#f52a65"),
	Warning:     lipgloss.Color("#8c6c3e"),
	DiffAdd:     lipgloss.Color("#587539"),
	DiffRemove:  lipgloss.Color("#f52a65"),
	ChromaStyle: "github",
}

// CurrentTheme is used by console output
var CurrentTheme = Dark

// SetTheme sets the current theme
func SetTheme(t Theme) {
	CurrentTheme = t
}

// ByName returns the named theme; "auto" picks by terminal background.
func ByName(name string) Theme {
	switch name {
	case "light":
		return Light
	case "dark":
		return Dark
	default:
		if lipgloss.HasDarkBackground() {
			return Dark
		}
		return Light
	}
}

// Styles are the lipgloss styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Tool    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Add     lipgloss.Style
	Remove  lipgloss.Style
}

// Styles builds the styles for t.
func (t Theme) Styles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(t.TextMuted),
		Tool:    lipgloss.NewStyle().Foreground(t.Primary),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Error:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Add:     lipgloss.NewStyle().Foreground(t.DiffAdd),
		Remove:  lipgloss.NewStyle().Foreground(t.DiffRemove),
	}
}
