package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors and styles for the UI.
type Theme struct {
	Name string

	Background string
	Surface    string

	SelectionBg   string
	SelectionText string

	Border      string
	BorderFocus string

	Text    string
	Muted   string
	Accent  string
	Success string
	Warning string
	Danger  string
}

// Styles holds the derived lipgloss styles for a theme.
type Styles struct {
	Text       lipgloss.Style
	MutedText  lipgloss.Style
	AccentText lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	Danger     lipgloss.Style

	Pane      lipgloss.Style
	FocusPane lipgloss.Style
	Selected  lipgloss.Style
	Title     lipgloss.Style
	StatusBar lipgloss.Style
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:       lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		AccentText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		Success:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		Warning:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		Danger:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),

		Pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),

		FocusPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.BorderFocus)).
			Padding(0, 1),

		Selected: lipgloss.NewStyle().
			Background(lipgloss.Color(t.SelectionBg)).
			Foreground(lipgloss.Color(t.SelectionText)),

		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true),

		StatusBar: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Muted)).
			Padding(0, 1),
	}
}

var themes = []Theme{
	{
		Name:          "Dracula",
		Background:    "#282a36",
		Surface:       "#343746",
		SelectionBg:   "#44475a",
		SelectionText: "#f8f8f2",
		Border:        "#6272a4",
		BorderFocus:   "#bd93f9",
		Text:          "#f8f8f2",
		Muted:         "#6272a4",
		Accent:        "#bd93f9",
		Success:       "#50fa7b",
		Warning:       "#f1fa8c",
		Danger:        "#ff5555",
	},
	{
		Name:          "Slate",
		Background:    "#1e2430",
		Surface:       "#283040",
		SelectionBg:   "#3b4252",
		SelectionText: "#eceff4",
		Border:        "#4c566a",
		BorderFocus:   "#88c0d0",
		Text:          "#d8dee9",
		Muted:         "#616e88",
		Accent:        "#88c0d0",
		Success:       "#a3be8c",
		Warning:       "#ebcb8b",
		Danger:        "#bf616a",
	},
	{
		Name:          "Paper",
		Background:    "#fafafa",
		Surface:       "#eeeeee",
		SelectionBg:   "#d7d7d7",
		SelectionText: "#1a1a1a",
		Border:        "#9e9e9e",
		BorderFocus:   "#5f87af",
		Text:          "#262626",
		Muted:         "#8a8a8a",
		Accent:        "#5f87af",
		Success:       "#2e7d32",
		Warning:       "#b7791f",
		Danger:        "#c62828",
	},
}

// GetTheme returns the named theme, falling back to the first theme when
// the name is unknown.
func GetTheme(name string) Theme {
	for _, t := range themes {
		if t.Name == name {
			return t
		}
	}
	return themes[0]
}

// NextTheme returns the name of the theme after current, wrapping around.
func NextTheme(current string) string {
	for i, t := range themes {
		if t.Name == current {
			return themes[(i+1)%len(themes)].Name
		}
	}
	return themes[0].Name
}
