package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/calmirror/internal/sync"
)

// PlanListResult is the outcome of browsing a dry-run plan.
type PlanListResult struct {
	// Apply is true when the user confirmed the plan should be executed.
	Apply bool
}

type planListKeyMap struct {
	Apply    key.Binding
	Filter   key.Binding
	ClearFlt key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultPlanListKeyMap() planListKeyMap {
	return planListKeyMap{
		Apply: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "apply"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFlt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// PlanListModel is a table of the creates, updates, deletes and failures a
// dry run would perform.
type PlanListModel struct {
	table       table.Model
	items       []sync.PlanItem
	filtered    []sync.PlanItem
	keys        planListKeyMap
	result      PlanListResult
	filter      filterBar
	showHelp    bool
	confirmMode bool
	quitting    bool
}

// NewPlanListModel creates a plan browser over items.
func NewPlanListModel(items []sync.PlanItem) PlanListModel {
	columns := []table.Column{
		{Title: "Action", Width: 8},
		{Title: "Rule", Width: 20},
		{Title: "Target", Width: 20},
		{Title: "Title", Width: 32},
		{Title: "Detail", Width: 30},
	}

	return PlanListModel{
		table:    newListTable(columns, planRows(items), "57"),
		items:    items,
		filtered: items,
		keys:     defaultPlanListKeyMap(),
	}
}

func planRows(items []sync.PlanItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, it := range items {
		rows[i] = table.Row{
			string(it.Action),
			truncateText(it.Rule, 20),
			truncateText(it.Target, 20),
			truncateText(it.Title, 32),
			truncateText(it.Detail, 30),
		}
	}
	return rows
}

// Init implements tea.Model.
func (m PlanListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PlanListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-8, 5))

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result.Apply = true
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
			}
			return m, nil
		}

		if m.filter.active {
			if m.filter.update(msg) {
				m.applyFilter()
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Filter):
			m.filter.active = true
			return m, nil
		case key.Matches(msg, m.keys.ClearFlt):
			if m.filter.clear() {
				m.applyFilter()
			}
			return m, nil
		case key.Matches(msg, m.keys.Apply):
			if m.hasChanges() {
				m.confirmMode = true
			}
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applyFilter keeps items whose action, rule, target or title contain the
// filter text, case-insensitively.
func (m *PlanListModel) applyFilter() {
	m.filtered = keep(m.items, func(it sync.PlanItem) bool {
		return m.filter.match(string(it.Action), it.Rule, it.Target, it.Title)
	})
	m.table.SetRows(planRows(m.filtered))
	m.table.SetCursor(0)
}

func (m PlanListModel) hasChanges() bool {
	for _, it := range m.items {
		if it.Action != sync.ActionFailed {
			return true
		}
	}
	return false
}

// Selected returns the highlighted item, if any.
func (m PlanListModel) Selected() (sync.PlanItem, bool) {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.filtered) {
		return m.filtered[cursor], true
	}
	return sync.PlanItem{}, false
}

// Summary counts the plan's items by action, e.g. "2 created, 1 deleted".
func (m PlanListModel) Summary() string {
	counts := make(map[sync.Action]int)
	for _, it := range m.items {
		counts[it.Action]++
	}
	var parts []string
	for _, a := range []sync.Action{sync.ActionCreated, sync.ActionUpdated, sync.ActionDeleted, sync.ActionFailed} {
		if n := counts[a]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, a))
		}
	}
	if len(parts) == 0 {
		return "nothing to do"
	}
	return strings.Join(parts, ", ")
}

// View implements tea.Model.
func (m PlanListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render("Sync plan (dry run)"))
	b.WriteString("\n\n")

	b.WriteString(m.filter.view())
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.confirmMode {
		b.WriteString(Styles.Confirm.Render(fmt.Sprintf("Apply %s? (y/n)", m.Summary())))
		return b.String()
	}

	status := m.Summary()
	if m.filter.text != "" {
		status = fmt.Sprintf("%s (showing %d of %d)", status, len(m.filtered), len(m.items))
	}
	b.WriteString(Styles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(Styles.Help.Render(`Navigation:
  ↑/k      Move up
  ↓/j      Move down

Actions:
  a        Apply the plan
  /        Filter by action, rule, target or title
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit without applying`))
	} else {
		b.WriteString(Styles.Help.Render(strings.Join([]string{"↑/↓ navigate", "a apply", "/ filter", "? help", "q quit"}, " • ")))
	}

	return b.String()
}

// Result returns the result of the user interaction.
func (m PlanListModel) Result() PlanListResult {
	return m.result
}

// RunPlanList shows the plan and reports whether the user chose to apply it.
// An empty plan returns immediately.
func RunPlanList(items []sync.PlanItem) (PlanListResult, error) {
	if len(items) == 0 {
		return PlanListResult{}, nil
	}

	finalModel, err := tea.NewProgram(NewPlanListModel(items), tea.WithAltScreen()).Run()
	if err != nil {
		return PlanListResult{}, err
	}
	if m, ok := finalModel.(PlanListModel); ok {
		return m.Result(), nil
	}
	return PlanListResult{}, nil
}
