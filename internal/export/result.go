package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/klauern/calmirror/internal/purge"
	"github.com/klauern/calmirror/internal/sync"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// newTable builds a bordered table whose numeric columns are right aligned.
func newTable(headers []string, numericCols ...int) *table.Table {
	numeric := make(map[int]bool, len(numericCols))
	for _, col := range numericCols {
		numeric[col] = true
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if numeric[col] {
				return numberStyle
			}
			return cellStyle
		})
}

// WriteResult renders a sync run in the given format.
func WriteResult(w io.Writer, res *sync.RunResult, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatYAML:
		return writeYAML(w, res)
	case FormatMarkdown:
		return writeResultMarkdown(w, res)
	case FormatTable, "":
		return writeResultTable(w, res)
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}
}

func writeResultTable(w io.Writer, res *sync.RunResult) error {
	t := newTable([]string{"Rule", "Target", "Mode", "Synced", "Deleted", "Skipped", "Failed", "Status"}, 3, 4, 5, 6)
	var notes []string
	for _, rr := range res.Rules {
		if len(rr.Targets) == 0 {
			t.Row(rr.RuleID, "-", "-", "0", "0", "0", "0", ruleStatus(rr, nil))
		}
		for i := range rr.Targets {
			tr := &rr.Targets[i]
			c := tr.Counts()
			t.Row(rr.RuleID, tr.Calendar, string(tr.Mode),
				strconv.Itoa(c.Synced), strconv.Itoa(c.Deleted),
				strconv.Itoa(c.Skipped), strconv.Itoa(c.Failed),
				ruleStatus(rr, tr))
		}
		for _, warning := range rr.AllWarnings() {
			notes = append(notes, fmt.Sprintf("%s: %s", rr.RuleID, warning))
		}
	}

	var sb strings.Builder
	if res.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")

	if plan := res.Plan(); res.DryRun && len(plan) > 0 {
		pt := newTable([]string{"Rule", "Target", "Action", "Title", "Detail"})
		for _, item := range plan {
			pt.Row(item.Rule, item.Target, string(item.Action), item.Title, item.Detail)
		}
		sb.WriteString(pt.Render())
		sb.WriteString("\n")
	}

	for _, n := range notes {
		fmt.Fprintf(&sb, "! %s\n", n)
	}
	c := res.Counts()
	fmt.Fprintf(&sb, "Total: synced %d, deleted %d, skipped %d, failed %d\n", c.Synced, c.Deleted, c.Skipped, c.Failed)

	_, err := io.WriteString(w, sb.String())
	return err
}

func ruleStatus(rr *sync.RuleResult, tr *sync.TargetResult) string {
	switch {
	case rr.Error != "":
		return "error"
	case tr != nil && tr.Error != "":
		return "skipped"
	case tr != nil && tr.Counts().Failed > 0:
		return "partial"
	case rr.Degraded:
		return "degraded"
	default:
		return "ok"
	}
}

func writeResultMarkdown(w io.Writer, res *sync.RunResult) error {
	var sb strings.Builder
	sb.WriteString("# Sync Results\n\n")
	if res.DryRun {
		sb.WriteString("*Dry run - no changes made*\n\n")
	}

	for _, rr := range res.Rules {
		fmt.Fprintf(&sb, "## %s\n\n", rr.RuleID)
		fmt.Fprintf(&sb, "Source: `%s`\n\n", rr.Source)
		if rr.Error != "" {
			fmt.Fprintf(&sb, "**Error:** %s\n\n", rr.Error)
			continue
		}
		sb.WriteString("| Target | Mode | Synced | Deleted | Skipped | Failed |\n")
		sb.WriteString("|--------|------|--------|---------|---------|--------|\n")
		for i := range rr.Targets {
			tr := &rr.Targets[i]
			c := tr.Counts()
			fmt.Fprintf(&sb, "| %s | %s | %d | %d | %d | %d |\n",
				tr.Calendar, tr.Mode, c.Synced, c.Deleted, c.Skipped, c.Failed)
		}
		sb.WriteString("\n")
		if warnings := rr.AllWarnings(); len(warnings) > 0 {
			sb.WriteString("Warnings:\n\n")
			for _, warning := range warnings {
				fmt.Fprintf(&sb, "- %s\n", warning)
			}
			sb.WriteString("\n")
		}
	}

	c := res.Counts()
	fmt.Fprintf(&sb, "**Total:** synced %d, deleted %d, skipped %d, failed %d\n", c.Synced, c.Deleted, c.Skipped, c.Failed)

	_, err := io.WriteString(w, sb.String())
	return err
}

// WritePurge renders a purge result in the given format. Markdown falls back
// to the table rendering.
func WritePurge(w io.Writer, res *purge.Result, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatYAML:
		return writeYAML(w, res)
	case FormatTable, FormatMarkdown, "":
	default:
		return fmt.Errorf("unsupported format: %s", f)
	}

	t := newTable([]string{"Calendar", "Filter", "Found", "Deleted", "Failed"}, 2, 3, 4)
	for _, c := range res.Calendars {
		if c.Error != "" {
			t.Row(c.Calendar, c.Filter, "-", "-", "-")
			continue
		}
		t.Row(c.Calendar, c.Filter, strconv.Itoa(c.Found), strconv.Itoa(c.Deleted), strconv.Itoa(c.Failed))
	}

	var sb strings.Builder
	if res.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	for _, c := range res.Calendars {
		if c.Error != "" {
			fmt.Fprintf(&sb, "! %s: %s\n", c.Calendar, c.Error)
		}
	}
	found, deleted, failed := res.Totals()
	fmt.Fprintf(&sb, "Total: found %d, deleted %d, failed %d\n", found, deleted, failed)

	_, err := io.WriteString(w, sb.String())
	return err
}
