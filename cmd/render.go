package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/grovetools/causes/pkg/livesync"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	maxDescLength = 60
)

// renderView prints the view as a title line, an optional error line and a
// table of the visible entities.
func renderView[T models.Record](w io.Writer, v livesync.View[T]) error {
	title := fmt.Sprintf("%s  %d of %d", v.Collection, len(v.Entities), v.Total)
	if filter := describeParams(v.Params); filter != "" {
		title += "  " + mutedStyle.Render(filter)
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	if v.State == livesync.PhaseError {
		fmt.Fprintln(w, errorStyle.Render("error: "+v.Reason))
		if v.Total > 0 {
			fmt.Fprintln(w, mutedStyle.Render("showing last synced data"))
		}
	}

	if len(v.Entities) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no matching entities"))
		return nil
	}

	_, err := fmt.Fprintln(w, entityTable(v.Entities).Render())
	return err
}

func entityTable[T models.Record](items []T) *ltable.Table {
	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "NAME", "CATEGORY", "DESCRIPTION")

	for _, item := range items {
		t.Row(item.GetID(), item.GetDisplayName(), item.GetCategory(), truncate(item.GetDescription(), maxDescLength))
	}
	return t
}

func describeParams(p query.Params) string {
	switch {
	case p.IsAll():
		return ""
	case p.Category != query.AllCategories && p.Search != "":
		return fmt.Sprintf("category=%s search=%q", p.Category, p.Search)
	case p.Category != query.AllCategories:
		return "category=" + p.Category
	default:
		return fmt.Sprintf("search=%q", p.Search)
	}
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// writeViewJSON writes one view per line so --follow output can be piped.
func writeViewJSON[T models.Record](w io.Writer, v livesync.View[T]) error {
	return json.NewEncoder(w).Encode(v)
}
