package terminal

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// StatusHeaders are the columns of the pipeline status table.
var StatusHeaders = []string{"", "commit", "tag", "last modified", "by", "dynos", "state"}

// RenderTable renders rows under headers with a rounded border.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col == 0 {
				return s.Bold(true)
			}
			return s
		})
	return t.Render()
}
