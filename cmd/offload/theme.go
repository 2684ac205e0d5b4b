package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"offload/pkg/protocol"
)

// Theme defines the colours used by status output and the dashboard.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default theme.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// Styles are the lipgloss styles derived from a Theme. The zero value
// renders plain text.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Muted  lipgloss.Style
	Pass   lipgloss.Style
	Fail   lipgloss.Style
	Status map[protocol.Status]lipgloss.Style
}

// NewStyles builds styles for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Label: lipgloss.NewStyle().Bold(true),
		Muted: lipgloss.NewStyle().Foreground(theme.Muted),
		Pass:  lipgloss.NewStyle().Foreground(theme.Success),
		Fail:  lipgloss.NewStyle().Foreground(theme.Error),
		Status: map[protocol.Status]lipgloss.Style{
			protocol.StatusQueued:     lipgloss.NewStyle().Foreground(theme.Muted),
			protocol.StatusProcessing: lipgloss.NewStyle().Foreground(theme.Warning),
			protocol.StatusCompleted:  lipgloss.NewStyle().Foreground(theme.Success),
			protocol.StatusError:      lipgloss.NewStyle().Foreground(theme.Error),
		},
	}
}

// stylesFor returns coloured styles when w is a terminal and plain ones
// otherwise.
func stylesFor(w io.Writer) Styles {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return NewStyles(DefaultTheme())
	}
	return Styles{}
}

func (s Styles) status(st protocol.Status) string {
	if style, ok := s.Status[st]; ok {
		return style.Render(string(st))
	}
	return string(st)
}
