// Package tui renders build results for the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark terminal theme
const (
	ColorBg     = "#0d1117"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds the lipgloss styles used by the renderers.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Muted    lipgloss.Style

	// Status badges
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusWarning lipgloss.Style

	Border lipgloss.Style
}

func badge(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(color)).
		Foreground(lipgloss.Color(ColorBg)).
		Padding(0, 1).
		Bold(true)
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)),

		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBlue)),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			Width(14),

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		StatusSuccess: badge(ColorGreen),
		StatusFailed:  badge(ColorRed),
		StatusWarning: badge(ColorYellow),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 2),
	}
}

// StatusBadge picks the badge for a build outcome: red when anything
// failed, yellow with warnings only, green otherwise.
func (s *Styles) StatusBadge(failed, warnings int) string {
	switch {
	case failed > 0:
		return s.StatusFailed.Render("FAILED")
	case warnings > 0:
		return s.StatusWarning.Render("WARNINGS")
	default:
		return s.StatusSuccess.Render("OK")
	}
}
