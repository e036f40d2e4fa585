package tui

import (
	"slices"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/calmirror/internal/config"
)

func testRules() []config.SyncRule {
	return []config.SyncRule{
		{ID: "work_to_personal", SourceCalendar: "work.main", Destination: []config.SyncTarget{{Calendar: "personal.main"}, {Calendar: "personal.family"}}},
		{ID: "team_to_personal", SourceCalendar: "team.offsites", Destination: []config.SyncTarget{{Calendar: "personal.main"}}},
		{ID: "school_to_family", SourceCalendar: "school.events", Destination: []config.SyncTarget{{Calendar: "personal.family"}}},
	}
}

func pressRules(m RulePickerModel, keys ...string) RulePickerModel {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "space":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = keyRunes(k)
		}
		next, _ := m.Update(msg)
		m = next.(RulePickerModel)
	}
	return m
}

func TestRulePicker_Selection(t *testing.T) {
	tests := map[string]struct {
		keys          []string
		wantSelected  []string
		wantConfirmed bool
	}{
		"nothing":             {keys: nil},
		"toggle first":        {keys: []string{"space"}, wantSelected: []string{"work_to_personal"}},
		"toggle twice":        {keys: []string{"space", "space"}},
		"toggle second":       {keys: []string{"down", "space"}, wantSelected: []string{"team_to_personal"}},
		"all":                 {keys: []string{"a"}, wantSelected: []string{"work_to_personal", "team_to_personal", "school_to_family"}},
		"all twice":           {keys: []string{"a", "a"}},
		"confirm":             {keys: []string{"space", "d", "y"}, wantSelected: []string{"work_to_personal"}, wantConfirmed: true},
		"decline":             {keys: []string{"space", "d", "n"}, wantSelected: []string{"work_to_personal"}},
		"confirm empty":       {keys: []string{"d", "y"}},
		"filtered toggle all": {keys: []string{"/", "t", "e", "a", "m", "enter", "a"}, wantSelected: []string{"team_to_personal"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := pressRules(NewRulePickerModel(testRules()), tt.keys...)
			if got := m.SelectedIDs(); !slices.Equal(got, tt.wantSelected) {
				t.Errorf("SelectedIDs() = %v, want %v", got, tt.wantSelected)
			}
			res := m.Result()
			if res.Confirmed != tt.wantConfirmed {
				t.Errorf("Confirmed = %v, want %v", res.Confirmed, tt.wantConfirmed)
			}
			if tt.wantConfirmed && !slices.Equal(res.RuleIDs, tt.wantSelected) {
				t.Errorf("RuleIDs = %v, want %v", res.RuleIDs, tt.wantSelected)
			}
		})
	}
}

func TestRulePicker_View(t *testing.T) {
	m := NewRulePickerModel(testRules())
	view := m.View()
	for _, want := range []string{"Purge mirrors by rule", "work_to_personal", "personal.main, personal.family", "0 of 3 rule(s) selected"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m = pressRules(m, "space", "d")
	if view := m.View(); !strings.Contains(view, "Purge every mirror of work_to_personal? (y/n)") {
		t.Errorf("confirm view = %q", view)
	}

	m = pressRules(NewRulePickerModel(testRules()), "?")
	if !strings.Contains(m.View(), "Toggle every visible rule") {
		t.Error("full help not shown")
	}
}

func TestRulePicker_Quit(t *testing.T) {
	m := pressRules(NewRulePickerModel(testRules()), "space", "q")
	if m.Result().Confirmed {
		t.Error("quit should not confirm")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}
