// Package render formats status and summary output for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/checkpoint"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/progress"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/writer"
)

var (
	colorGreen = lipgloss.Color("#04B575")
	colorRed   = lipgloss.Color("#FF4141")
	colorGray  = lipgloss.Color("#626262")
	colorBlue  = lipgloss.Color("#007BFF")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	styleCompleted = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	styleInProgress = lipgloss.NewStyle().
			Foreground(colorBlue)

	styleFailed = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(colorGray)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case progress.StatusCompleted:
		return styleCompleted
	case "failed":
		return styleFailed
	default:
		return styleInProgress
	}
}

// ProgressTable renders the warehouse-side progress entries.
func ProgressTable(entries []progress.Entry) string {
	var sb strings.Builder
	sb.WriteString(styleTitle.Render("Migration progress"))
	sb.WriteByte('\n')

	if len(entries) == 0 {
		sb.WriteString(styleDim.Render("  no migrations recorded"))
		sb.WriteByte('\n')
		return sb.String()
	}

	for _, e := range entries {
		total := "?"
		if e.TotalRows != nil {
			total = fmt.Sprintf("%d", *e.TotalRows)
		}
		line := fmt.Sprintf("  %-32s %12d / %-12s %s",
			e.TableName, e.LastRowProcessed, total,
			statusStyle(e.Status).Render(e.Status))
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteSummary renders one table load's outcome.
func WriteSummary(res *writer.Result) string {
	status := styleCompleted.Render("completed")
	return fmt.Sprintf("  %-32s %s  inserted=%d conflicts=%d resumed=%d (%s)",
		res.Table, status, res.Inserted, res.Conflicts, res.Resumed,
		res.Duration.Round(time.Millisecond))
}

// RunHistory renders recent runs from the local history database.
func RunHistory(runs []checkpoint.Run) string {
	var sb strings.Builder
	sb.WriteString(styleTitle.Render("Recent runs"))
	sb.WriteByte('\n')

	if len(runs) == 0 {
		sb.WriteString(styleDim.Render("  no runs recorded"))
		sb.WriteByte('\n')
		return sb.String()
	}

	for _, r := range runs {
		dur := styleDim.Render("running")
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		sb.WriteString(fmt.Sprintf("  %s  %-8s %s  %s  %s\n",
			r.ID, r.Kind,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			statusStyle(r.Status).Render(r.Status),
			dur))
	}
	return sb.String()
}

// RunDetail renders the per-dataset results of one run.
func RunDetail(results []checkpoint.DatasetResult) string {
	var sb strings.Builder
	for _, r := range results {
		line := fmt.Sprintf("    %-32s %s  inserted=%d conflicts=%d",
			r.Dataset, statusStyle(r.Status).Render(r.Status), r.Inserted, r.Conflicts)
		if r.Error != "" {
			line += "  " + styleFailed.Render(r.Error)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
