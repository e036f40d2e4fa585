package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// newListTable builds the focused table used by every view. highlight is the
// background color of the cursor row.
func newListTable(columns []table.Column, rows []table.Row, highlight string) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color(highlight)).
		Bold(false)
	t.SetStyles(s)
	return t
}

// filterBar is the "/" search line of the list views.
type filterBar struct {
	text   string
	active bool
}

// update edits the text while the bar is active. It reports whether the
// text changed.
func (f *filterBar) update(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyEnter:
		f.active = false
	case tea.KeyEsc:
		f.active = false
		return f.clear()
	case tea.KeyBackspace:
		if f.text == "" {
			return false
		}
		r := []rune(f.text)
		f.text = string(r[:len(r)-1])
		return true
	case tea.KeySpace:
		f.text += " "
		return true
	case tea.KeyRunes:
		if len(msg.Runes) > 0 {
			f.text += string(msg.Runes)
			return true
		}
	}
	return false
}

func (f *filterBar) clear() bool {
	changed := f.text != ""
	f.text = ""
	return changed
}

// match reports whether any field contains the text, ignoring case.
func (f filterBar) match(fields ...string) bool {
	if f.text == "" {
		return true
	}
	needle := strings.ToLower(f.text)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (f filterBar) view() string {
	if f.text == "" && !f.active {
		return ""
	}
	val := Styles.FilterInput.Render(f.text)
	if f.active {
		val += "█"
	}
	return Styles.Filter.Render("Filter: ") + val + "\n\n"
}

// keep returns the items for which ok is true.
func keep[T any](items []T, ok func(T) bool) []T {
	var out []T
	for _, it := range items {
		if ok(it) {
			out = append(out, it)
		}
	}
	return out
}
