package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const formatPrefix = "<FORMAT>"

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// render turns a formatted reply into a table and returns other replies
// unchanged. A formatted reply is a "<FORMAT><COLUMNS>" line, a comma
// separated header, then one comma separated line per row.
func render(reply string) string {
	if !strings.HasPrefix(reply, formatPrefix) {
		return reply
	}

	lines := strings.Split(strings.TrimRight(reply, "\n"), "\n")
	if len(lines) < 2 {
		return reply
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	body := lines[1:]
	if strings.Contains(lines[0], "<COLUMNS>") {
		t.Headers(strings.Split(lines[1], ",")...)
		body = lines[2:]
	}
	for _, line := range body {
		t.Row(strings.Split(line, ",")...)
	}
	return t.Render()
}
