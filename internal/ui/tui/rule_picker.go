package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/calmirror/internal/config"
)

// RulePickerResult holds the rules chosen for purging. Confirmed is false
// when the user quit.
type RulePickerResult struct {
	Confirmed bool
	RuleIDs   []string
}

type rulePickerKeyMap struct {
	Toggle    key.Binding
	ToggleAll key.Binding
	Confirm   key.Binding
	Filter    key.Binding
	ClearFlt  key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultRulePickerKeyMap() rulePickerKeyMap {
	return rulePickerKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "tab"),
			key.WithHelp("space/tab", "toggle"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle all"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("d", "enter"),
			key.WithHelp("d", "purge selected"),
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

// RulePickerModel selects the sync rules whose mirrors should be purged.
type RulePickerModel struct {
	table       table.Model
	rules       []config.SyncRule
	filtered    []config.SyncRule
	selected    map[string]bool
	keys        rulePickerKeyMap
	result      RulePickerResult
	filter      filterBar
	showHelp    bool
	confirmMode bool
	quitting    bool
}

const (
	rulePickerCheckboxWidth = 3
	rulePickerRuleWidth     = 24
	rulePickerSourceWidth   = 20
	rulePickerDestWidth     = 40
)

// NewRulePickerModel creates a picker over rules with nothing selected.
func NewRulePickerModel(rules []config.SyncRule) RulePickerModel {
	columns := []table.Column{
		{Title: " ", Width: rulePickerCheckboxWidth},
		{Title: "Rule", Width: rulePickerRuleWidth},
		{Title: "Source", Width: rulePickerSourceWidth},
		{Title: "Destinations", Width: rulePickerDestWidth},
	}

	m := RulePickerModel{
		rules:    rules,
		filtered: rules,
		selected: make(map[string]bool),
		keys:     defaultRulePickerKeyMap(),
	}

	m.table = newListTable(columns, m.rulesToRows(rules), "52")
	return m
}

func (m RulePickerModel) rulesToRows(rules []config.SyncRule) []table.Row {
	rows := make([]table.Row, len(rules))
	for i, r := range rules {
		checkbox := "[ ]"
		if m.selected[r.ID] {
			checkbox = "[x]"
		}
		dests := make([]string, len(r.Destination))
		for j, d := range r.Destination {
			dests[j] = d.Calendar
		}
		rows[i] = table.Row{
			checkbox,
			truncateText(r.ID, rulePickerRuleWidth),
			truncateText(r.SourceCalendar, rulePickerSourceWidth),
			truncateText(strings.Join(dests, ", "), rulePickerDestWidth),
		}
	}
	return rows
}

// Init implements tea.Model.
func (m RulePickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m RulePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-8, 5))

	case tea.KeyMsg:
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = RulePickerResult{Confirmed: true, RuleIDs: m.SelectedIDs()}
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

		case key.Matches(msg, m.keys.Toggle):
			cursor := m.table.Cursor()
			if cursor >= 0 && cursor < len(m.filtered) {
				id := m.filtered[cursor].ID
				m.selected[id] = !m.selected[id]
				m.refreshRows()
			}
			return m, nil

		case key.Matches(msg, m.keys.ToggleAll):
			all := true
			for _, r := range m.filtered {
				if !m.selected[r.ID] {
					all = false
					break
				}
			}
			for _, r := range m.filtered {
				m.selected[r.ID] = !all
			}
			m.refreshRows()
			return m, nil

		case key.Matches(msg, m.keys.Confirm):
			if len(m.SelectedIDs()) > 0 {
				m.confirmMode = true
			}
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *RulePickerModel) refreshRows() {
	cursor := m.table.Cursor()
	m.table.SetRows(m.rulesToRows(m.filtered))
	m.table.SetCursor(cursor)
}

func (m *RulePickerModel) applyFilter() {
	m.filtered = keep(m.rules, func(r config.SyncRule) bool {
		return m.filter.match(r.ID, r.SourceCalendar)
	})
	m.table.SetRows(m.rulesToRows(m.filtered))
	m.table.SetCursor(0)
}

// SelectedIDs returns the checked rule ids in configuration order.
func (m RulePickerModel) SelectedIDs() []string {
	var ids []string
	for _, r := range m.rules {
		if m.selected[r.ID] {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// View implements tea.Model.
func (m RulePickerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render("Purge mirrors by rule"))
	b.WriteString("\n\n")

	b.WriteString(m.filter.view())
	b.WriteString(m.table.View())
	if m.confirmMode {
		b.WriteString("\n\n")
		msg := fmt.Sprintf("Purge every mirror of %s? (y/n)", strings.Join(m.SelectedIDs(), ", "))
		b.WriteString(Styles.Confirm.Render(msg))
		return b.String()
	}
	b.WriteString("\n")

	b.WriteString(Styles.Status.Render(fmt.Sprintf("%d of %d rule(s) selected", len(m.SelectedIDs()), len(m.rules))))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(Styles.Help.Render(`Selection:
  Space    Toggle the rule under the cursor
  a        Toggle every visible rule
  d/Enter  Purge the selected rules

Filter:
  /        Start filtering
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit without purging`))
	} else {
		b.WriteString(Styles.Help.Render(strings.Join([]string{
			"↑/↓ navigate",
			"space toggle",
			"a all",
			"d purge",
			"/ filter",
			"? help",
			"q quit",
		}, " • ")))
	}
	return b.String()
}

// Result returns the result of the user interaction.
func (m RulePickerModel) Result() RulePickerResult {
	return m.result
}

// RunRulePicker runs the interactive rule picker and returns the result.
func RunRulePicker(rules []config.SyncRule) (RulePickerResult, error) {
	if len(rules) == 0 {
		return RulePickerResult{}, nil
	}

	finalModel, err := tea.NewProgram(NewRulePickerModel(rules), tea.WithAltScreen()).Run()
	if err != nil {
		return RulePickerResult{}, err
	}
	if m, ok := finalModel.(RulePickerModel); ok {
		return m.Result(), nil
	}
	return RulePickerResult{}, nil
}
