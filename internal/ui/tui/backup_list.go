package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/calmirror/internal/backup"
)

// BackupAction is what the user chose to do with the selected snapshot.
type BackupAction int

const (
	// ActionNone means the user quit without choosing.
	ActionNone BackupAction = iota
	// ActionRestore re-inserts the snapshot's events.
	ActionRestore
	// ActionDelete removes the snapshot.
	ActionDelete
	// ActionVerify checks the snapshot's hash.
	ActionVerify
)

// BackupListResult is the snapshot picked in the browser and what to do with it.
type BackupListResult struct {
	Action BackupAction
	Backup backup.Metadata
}

type backupKeys struct {
	table.KeyMap
	Restore key.Binding
	Delete  key.Binding
	Verify  key.Binding
	Filter  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newBackupKeys() backupKeys {
	return backupKeys{
		KeyMap:  table.DefaultKeyMap(),
		Restore: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restore into calendar")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete snapshot")),
		Verify:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verify hash")),
		Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter (esc clears)")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k backupKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Restore, k.Delete, k.Verify, k.Filter, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k backupKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.LineUp, k.LineDown, k.GotoTop, k.GotoBottom},
		{k.Restore, k.Delete, k.Verify},
		{k.Filter, k.Help, k.Quit},
	}
}

// BackupListModel browses purge snapshots. Restore and delete ask for a y/n
// confirmation; verify does not.
type BackupListModel struct {
	table   table.Model
	all     []backup.Metadata
	shown   []backup.Metadata
	keys    backupKeys
	help    help.Model
	filter  filterBar
	pending *BackupListResult
	result  BackupListResult
	done    bool
}

// NewBackupListModel lists backups newest first, in the order given.
func NewBackupListModel(backups []backup.Metadata) BackupListModel {
	columns := []table.Column{
		{Title: "ID", Width: 24},
		{Title: "Calendar", Width: 24},
		{Title: "Events", Width: 7},
		{Title: "Created", Width: 16},
		{Title: "Size", Width: 9},
		{Title: "Note", Width: 20},
	}
	return BackupListModel{
		table: newListTable(columns, backupRows(backups), "57"),
		all:   backups,
		shown: backups,
		keys:  newBackupKeys(),
		help:  help.New(),
	}
}

func backupRows(backups []backup.Metadata) []table.Row {
	rows := make([]table.Row, len(backups))
	for i, b := range backups {
		rows[i] = table.Row{
			b.ID,
			truncateText(b.Calendar, 24),
			strconv.Itoa(b.Events),
			b.CreatedAt.Format("2006-01-02 15:04"),
			formatSize(b.Size),
			truncateText(b.Description, 20),
		}
	}
	return rows
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// Init implements tea.Model.
func (m BackupListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m BackupListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-8, 5))
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case m.pending != nil:
			return m.answer(msg)
		case m.filter.active:
			if m.filter.update(msg) {
				m.refilter()
			}
			return m, nil
		}
		return m.command(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// answer handles the y/n prompt of a pending restore or delete.
func (m BackupListModel) answer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		m.result = *m.pending
		m.done = true
		return m, tea.Quit
	case "n", "esc":
		m.pending = nil
	}
	return m, nil
}

func (m BackupListModel) command(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	selected, ok := m.Selected()
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.done = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Filter):
		m.filter.active = true
	case msg.Type == tea.KeyEsc:
		if m.filter.clear() {
			m.refilter()
		}
	case !ok:
	case key.Matches(msg, m.keys.Restore):
		m.pending = &BackupListResult{Action: ActionRestore, Backup: selected}
	case key.Matches(msg, m.keys.Delete):
		m.pending = &BackupListResult{Action: ActionDelete, Backup: selected}
	case key.Matches(msg, m.keys.Verify):
		m.result = BackupListResult{Action: ActionVerify, Backup: selected}
		m.done = true
		return m, tea.Quit
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *BackupListModel) refilter() {
	m.shown = keep(m.all, func(b backup.Metadata) bool {
		return m.filter.match(b.ID, b.Calendar, b.Description)
	})
	m.table.SetRows(backupRows(m.shown))
	m.table.SetCursor(0)
}

// Selected returns the snapshot under the cursor.
func (m BackupListModel) Selected() (backup.Metadata, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.shown) {
		return backup.Metadata{}, false
	}
	return m.shown[i], true
}

func (m BackupListModel) prompt() string {
	b := m.pending.Backup
	if m.pending.Action == ActionDelete {
		return fmt.Sprintf("Delete backup %s? (y/n)", b.ID)
	}
	return fmt.Sprintf("Restore %d event(s) into %s? (y/n)", b.Events, b.Calendar)
}

// View implements tea.Model.
func (m BackupListModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render("Purge snapshots") + "\n\n")
	b.WriteString(m.filter.view())
	b.WriteString(m.table.View())
	if m.pending != nil {
		b.WriteString("\n\n" + Styles.Confirm.Render(m.prompt()))
		return b.String()
	}

	status := fmt.Sprintf("%d backup(s)", len(m.shown))
	if len(m.shown) != len(m.all) {
		status = fmt.Sprintf("%d of %d backup(s) match %q", len(m.shown), len(m.all), m.filter.text)
	}
	b.WriteString("\n" + Styles.Status.Render(status) + "\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Result returns the result of the user interaction.
func (m BackupListModel) Result() BackupListResult {
	return m.result
}

// RunBackupList runs the interactive backup list and returns the result.
func RunBackupList(backups []backup.Metadata) (BackupListResult, error) {
	if len(backups) == 0 {
		return BackupListResult{}, nil
	}

	final, err := tea.NewProgram(NewBackupListModel(backups), tea.WithAltScreen()).Run()
	if err != nil {
		return BackupListResult{}, err
	}
	if m, ok := final.(BackupListModel); ok {
		return m.Result(), nil
	}
	return BackupListResult{}, nil
}
