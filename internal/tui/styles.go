package tui

import "github.com/charmbracelet/lipgloss"

// Palette, in 256-color codes.
var (
	colorAccent  = lipgloss.Color("44") // teal
	colorMuted   = lipgloss.Color("244")
	colorFaint   = lipgloss.Color("238")
	colorText    = lipgloss.Color("253")
	colorGood    = lipgloss.Color("71")
	colorBad     = lipgloss.Color("160")
	colorCaution = lipgloss.Color("178")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	taglineStyle = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)

	successStyle = lipgloss.NewStyle().Foreground(colorGood)
	errorStyle   = lipgloss.NewStyle().Foreground(colorBad)
	warnStyle    = lipgloss.NewStyle().Foreground(colorCaution)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	helpStyle    = lipgloss.NewStyle().Foreground(colorMuted).Faint(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(colorAccent)

	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	answerStyle   = lipgloss.NewStyle().Foreground(colorText)

	// Cited files under an answer.
	sourceStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(colorFaint).
			PaddingLeft(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorFaint).
			Padding(0, 1)
)
