package sync

import (
	"context"
	"testing"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/provenance"
)

const (
	workCal     = "work@example.com"
	personalCal = "personal@example.com"
	familyCal   = "family@example.com"
	testRule    = "work_to_personal"
)

var testNow = time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)

// memorySessions serves every account from one Memory.
type memorySessions struct {
	mem  *calendar.Memory
	fail map[string]error
}

func (p *memorySessions) Session(_ context.Context, acct config.Account) (calendar.Session, error) {
	if err := p.fail[acct.Name]; err != nil {
		return nil, err
	}
	return p.mem, nil
}

func testConfig(targets ...config.SyncTarget) *config.Config {
	cfg := config.Default()
	cfg.Accounts = []config.Account{
		{
			Name:      "work",
			Email:     "me@work.example.com",
			Calendars: []config.Calendar{{Label: "main", CalendarID: workCal, Name: "Work"}},
		},
		{
			Name:  "personal",
			Email: "me@home.example.com",
			Calendars: []config.Calendar{
				{Label: "main", CalendarID: personalCal, Name: "Personal"},
				{Label: "family", CalendarID: familyCal, Name: "Family"},
			},
		},
	}
	cfg.SyncRules = []config.SyncRule{{
		ID:             testRule,
		SourceCalendar: "work.main",
		Destination:    targets,
	}}
	return cfg
}

type fixture struct {
	cfg      *config.Config
	mem      *calendar.Memory
	sessions *memorySessions
	rec      *Reconciler
}

func newFixture(t *testing.T, targets ...config.SyncTarget) *fixture {
	t.Helper()
	mem := calendar.NewMemory()
	mem.AddCalendar(workCal, "Work")
	mem.AddCalendar(personalCal, "Personal")
	mem.AddCalendar(familyCal, "Family")
	f := &fixture{
		cfg:      testConfig(targets...),
		mem:      mem,
		sessions: &memorySessions{mem: mem, fail: map[string]error{}},
	}
	f.rec = NewReconciler(f.cfg, f.sessions,
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return testNow }),
	)
	return f
}

func (f *fixture) rule() config.SyncRule {
	return f.cfg.SyncRules[0]
}

func (f *fixture) sync(t *testing.T, dryRun bool) *RuleResult {
	t.Helper()
	res, err := f.rec.SyncRule(context.Background(), f.rule(), dryRun)
	if err != nil {
		t.Fatalf("SyncRule() error = %v", err)
	}
	return res
}

func timedEvent(id, title string, start, end time.Time) *gcal.Event {
	return &gcal.Event{
		Id:      id,
		Summary: title,
		Start:   &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func allDayEvent(id, title, start, end string) *gcal.Event {
	return &gcal.Event{
		Id:      id,
		Summary: title,
		Start:   &gcal.EventDateTime{Date: start},
		End:     &gcal.EventDateTime{Date: end},
	}
}

// teamSync is the source event used throughout the reconciler tests.
func teamSync() *gcal.Event {
	ev := timedEvent("team-sync", "Team Sync",
		time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC))
	ev.Description = "Quarterly numbers, do not share"
	ev.Location = "Room 4"
	ev.Attendees = []*gcal.EventAttendee{{Email: "boss@work.example.com", ResponseStatus: "accepted"}}
	return ev
}

func privateTarget(calendarRef string) config.SyncTarget {
	return config.SyncTarget{
		Calendar:     calendarRef,
		PrivacyMode:  "private",
		PrivacyLabel: "Busy",
		ShowTime:     true,
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func mirrorOf(id, sourceEventID, sourceCalendarID string, tags provenance.Tags, start time.Time) *gcal.Event {
	ev := timedEvent(id, "Busy", start, start.Add(time.Hour))
	ev.ExtendedProperties = &gcal.EventExtendedProperties{
		Private: tags.Stamp(sourceCalendarID, sourceEventID, 1, testNow),
	}
	return ev
}
