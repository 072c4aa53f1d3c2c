package terminal

import "github.com/charmbracelet/lipgloss"

var (
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	SpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	CommandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	OKStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3FB950"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// BadgeStyle renders inverse labels like " Phase 1/2 ".
	BadgeStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1)

	WarningBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD33D")).
			Background(lipgloss.Color("#B31D28")).
			Padding(0, 1)

	AlertBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD33D")).
			Background(lipgloss.Color("#B31D28")).
			Padding(0, 1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// Match colors a commit green when it equals the reference, red otherwise.
func Match(commit, reference string) string {
	if commit == "" {
		return DimStyle.Render("?")
	}
	if commit == reference {
		return OKStyle.Render(commit)
	}
	return ErrorStyle.Render(commit)
}
