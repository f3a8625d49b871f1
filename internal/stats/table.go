package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// column describes one table column. Numeric columns align right.
type column struct {
	title string
	right bool
}

var (
	raceColumns = []column{
		{title: "Ended"},
		{title: "WPM", right: true},
		{title: "Accuracy", right: true},
		{title: "Rank", right: true},
		{title: "Rating", right: true},
	}
	boardColumns = []column{
		{title: "#", right: true},
		{title: "Name"},
		{title: "Rating", right: true},
		{title: "Best WPM", right: true},
	}
)

// formatTable lays rows out under cols, sizing each column to its widest
// cell in display cells. Missing cells render empty.
func formatTable(cols []column, rows [][]string) []string {
	if len(cols) == 0 {
		return nil
	}
	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = runewidth.StringWidth(col.title)
	}
	for _, row := range rows {
		for i := range cols {
			if i < len(row) {
				widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
			}
		}
	}

	titles := make([]string, len(cols))
	for i, col := range cols {
		titles[i] = col.title
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, joinCells(cols, widths, titles))
	for _, row := range rows {
		lines = append(lines, joinCells(cols, widths, row))
	}
	return lines
}

func joinCells(cols []column, widths []int, row []string) string {
	cells := make([]string, len(cols))
	for i, col := range cols {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if col.right {
			cells[i] = runewidth.FillLeft(cell, widths[i])
		} else {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
	}
	return strings.Join(cells, " ")
}
