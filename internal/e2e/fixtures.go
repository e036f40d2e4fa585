package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauern/calmirror/internal/config"
)

// Fixture provides helpers for creating test fixtures in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// TempFixture creates a fixture helper for a new temporary directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}
	return fullPath
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// FeedEvent is one VEVENT of a generated feed.
type FeedEvent struct {
	UID      string
	Summary  string
	Location string
	Class    string // PUBLIC, PRIVATE or CONFIDENTIAL
	Start    time.Time
	Duration time.Duration
	AllDay   bool
	// Provenance lines, "key=value", mark the event as someone's mirror.
	Provenance []string
}

// WriteFeed writes an ICS calendar holding events and returns its path.
func (f *Fixture) WriteFeed(relPath string, events ...FeedEvent) string {
	f.t.Helper()
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\r\n", args...)
	}
	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:-//calmirror//e2e//EN")
	line("X-WR-CALNAME:%s", FeedName)
	for _, ev := range events {
		line("BEGIN:VEVENT")
		line("UID:%s", ev.UID)
		line("DTSTAMP:%s", icsTime(ev.Start))
		if ev.AllDay {
			day := ev.Start.UTC()
			line("DTSTART;VALUE=DATE:%s", day.Format("20060102"))
			line("DTEND;VALUE=DATE:%s", day.AddDate(0, 0, 1).Format("20060102"))
		} else {
			d := ev.Duration
			if d == 0 {
				d = time.Hour
			}
			line("DTSTART:%s", icsTime(ev.Start))
			line("DTEND:%s", icsTime(ev.Start.Add(d)))
		}
		line("SUMMARY:%s", ev.Summary)
		if ev.Location != "" {
			line("LOCATION:%s", ev.Location)
		}
		if ev.Class != "" {
			line("CLASS:%s", ev.Class)
		}
		for _, p := range ev.Provenance {
			line("X-CALMIRROR-PROVENANCE:%s", p)
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return f.WriteFile(relPath, b.String())
}

func icsTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Calendar ids and labels used by MirrorConfig.
const (
	FeedName         = "Team"
	PersonalCalendar = "personal@example.com"
	FamilyCalendar   = "family@example.com"
	Rule             = "team_to_personal"
)

// MirrorConfig mirrors the feed at feedPath into personal.main as "Busy"
// and into family.shared with full details.
func MirrorConfig(feedPath string) *config.Config {
	cfg := config.Default()
	cfg.Accounts = []config.Account{
		{
			Name:      "team",
			AuthType:  config.AuthICS,
			Calendars: []config.Calendar{{Label: "offsites", CalendarID: feedPath, Name: "Team"}},
		},
		{
			Name:  "personal",
			Email: "me@example.com",
			Calendars: []config.Calendar{
				{Label: "main", CalendarID: PersonalCalendar, Name: "Personal"},
				{Label: "shared", CalendarID: FamilyCalendar, Name: "Family"},
			},
		},
	}
	cfg.SyncRules = []config.SyncRule{{
		ID:             Rule,
		SourceCalendar: "team.offsites",
		Destination: []config.SyncTarget{
			{Calendar: "personal.main", PrivacyMode: "private", PrivacyLabel: "Busy"},
			{Calendar: "personal.shared", PrivacyMode: "public", TitlePrefix: "[Team]"},
		},
	}}
	return cfg
}
