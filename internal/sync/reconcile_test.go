package sync

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/metrics"
	"github.com/klauern/calmirror/internal/provenance"
)

const scenarioFooter = "\n\n---\nEvent added by Calmirror from Work calendar."

func TestSyncRule_ScenarioA_PrivateWithTime(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	f.mem.Put(workCal, teamSync())

	res := f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 1 {
		t.Fatalf("personal calendar has %d events, want 1", len(mirrors))
	}
	m := mirrors[0]
	if m.Summary != "Busy - 10:00" {
		t.Errorf("Summary = %q, want %q", m.Summary, "Busy - 10:00")
	}
	if m.Description != scenarioFooter {
		t.Errorf("Description = %q, want footer only", m.Description)
	}
	if len(m.Attendees) != 0 || m.Location != "" {
		t.Errorf("Attendees = %v, Location = %q, want none", m.Attendees, m.Location)
	}
	if c := res.Counts(); c.Synced != 1 || c.Deleted != 0 {
		t.Errorf("Counts() = %+v", c)
	}
	if got := res.Targets[0].Events[0].Action; got != ActionCreated {
		t.Errorf("Action = %s, want created", got)
	}
}

func TestSyncRule_ScenarioB_SourceDeleted(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	f.mem.Put(workCal, teamSync())
	f.sync(t, false)

	f.mem.Remove(workCal, "team-sync")
	res := f.sync(t, false)

	if c := res.Counts(); c.Deleted != 1 || c.Synced != 0 {
		t.Errorf("Counts() = %+v, want 1 deleted", c)
	}
	if n := len(f.mem.Events(personalCal)); n != 0 {
		t.Errorf("personal calendar has %d events, want 0", n)
	}
}

func TestSyncRule_ScenarioC_UnknownPrivacyMode(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main", PrivacyMode: "mystery", PrivacyLabel: "Busy"})
	f.mem.Put(workCal, teamSync())

	res := f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 1 {
		t.Fatalf("personal calendar has %d events, want 1", len(mirrors))
	}
	if mirrors[0].Summary != "Team Sync" {
		t.Errorf("Summary = %q, want source title", mirrors[0].Summary)
	}
	if mirrors[0].Location != "Room 4" {
		t.Errorf("Location = %q, want public transform", mirrors[0].Location)
	}
	tr := res.Targets[0]
	if len(tr.Warnings) != 1 || !strings.Contains(tr.Warnings[0], "mystery") {
		t.Errorf("Warnings = %v, want one naming the mode", tr.Warnings)
	}
	if tr.Mode != "public" {
		t.Errorf("Mode = %q, want public", tr.Mode)
	}
}

func TestSyncRule_Idempotent(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"), config.SyncTarget{Calendar: "personal.family"})
	f.mem.Put(workCal, teamSync())
	f.mem.Put(workCal, allDayEvent("offsite", "Offsite", "2024-01-12", "2024-01-13"))
	f.sync(t, false)
	before := len(f.mem.Events(personalCal)) + len(f.mem.Events(familyCal))

	f.mem.ResetCalls()
	res := f.sync(t, false)

	if got := f.mem.Calls(calendar.MethodInsert); got != 0 {
		t.Errorf("second run inserted %d events, want 0", got)
	}
	if got := f.mem.Calls(calendar.MethodDelete); got != 0 {
		t.Errorf("second run deleted %d events, want 0", got)
	}
	after := len(f.mem.Events(personalCal)) + len(f.mem.Events(familyCal))
	if before != 4 || after != before {
		t.Errorf("mirror count before/after = %d/%d, want 4/4", before, after)
	}
	for _, tr := range res.Targets {
		if len(tr.Filter(ActionUpdated)) != 2 {
			t.Errorf("%s: updated = %d, want 2", tr.Calendar, len(tr.Filter(ActionUpdated)))
		}
	}
	for _, m := range f.mem.Events(personalCal) {
		if got := m.ExtendedProperties.Private[provenance.SyncCount]; got != "2" {
			t.Errorf("%s sync_count = %q, want 2", m.Summary, got)
		}
	}
}

func TestSyncRule_RoundTripIdentity(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	f.mem.Put(workCal, teamSync())
	f.mem.Put(workCal, allDayEvent("offsite", "Offsite", "2024-01-12", "2024-01-13"))
	f.sync(t, false)

	var got []string
	for _, m := range f.mem.Events(personalCal) {
		rec, err := DecodeDestination(m)
		if err != nil {
			t.Fatalf("DecodeDestination() error = %v", err)
		}
		if rec.SourceCalendarID != workCal {
			t.Errorf("SourceCalendarID = %q, want %q", rec.SourceCalendarID, workCal)
		}
		got = append(got, rec.SourceEventID)
	}
	slices.Sort(got)
	if strings.Join(got, ",") != "offsite,team-sync" {
		t.Errorf("mirror source ids = %v", got)
	}
}

func TestSyncRule_DeletionLaw(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	f.mem.Put(workCal, timedEvent("keep", "Keep", start, start.Add(time.Hour)))
	f.mem.Put(workCal, timedEvent("drop", "Drop", start, start.Add(time.Hour)))

	otherRule := provenance.Tags{Instance: "calmirror", Rule: "other_rule"}
	f.mem.Put(personalCal, mirrorOf("foreign", "ghost", workCal, otherRule, start))
	f.mem.Put(personalCal, timedEvent("dentist", "Dentist", start, start.Add(time.Hour)))
	f.sync(t, false)

	f.mem.Remove(workCal, "drop")
	res := f.sync(t, false)

	deleted := res.Targets[0].Filter(ActionDeleted)
	if len(deleted) != 1 || deleted[0].SourceEventID != "drop" {
		t.Fatalf("deleted = %+v, want only the mirror of drop", deleted)
	}
	var remaining []string
	for _, ev := range f.mem.Events(personalCal) {
		remaining = append(remaining, ev.Id)
	}
	for _, id := range []string{"foreign", "dentist"} {
		if !slices.Contains(remaining, id) {
			t.Errorf("unrelated event %s was removed", id)
		}
	}
	if len(remaining) != 3 {
		t.Errorf("personal calendar has %d events, want 3", len(remaining))
	}
}

func TestSyncRule_DeletesPastMirrors(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	tags := f.cfg.RuleTags(testRule)
	longAgo := testNow.Add(-200 * 24 * time.Hour)
	f.mem.Put(personalCal, mirrorOf("stale", "vanished", workCal, tags, longAgo))

	res := f.sync(t, false)

	if c := res.Counts(); c.Deleted != 1 {
		t.Errorf("Counts() = %+v, want the out-of-window orphan deleted", c)
	}
}

func TestSyncRule_MovedSourceKeepsOneMirror(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	f.mem.Put(workCal, teamSync())
	f.sync(t, false)
	original := f.mem.Events(personalCal)
	if len(original) != 1 {
		t.Fatalf("personal calendar has %d events, want 1", len(original))
	}

	moved := teamSync()
	moved.Start.DateTime = time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	moved.End.DateTime = time.Date(2024, 1, 13, 11, 0, 0, 0, time.UTC).Format(time.RFC3339)
	f.mem.Put(workCal, moved)
	f.mem.ResetCalls()
	res := f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 1 {
		t.Fatalf("personal calendar has %d events, want 1", len(mirrors))
	}
	if mirrors[0].Id != original[0].Id {
		t.Errorf("mirror id = %s, want the existing %s", mirrors[0].Id, original[0].Id)
	}
	if mirrors[0].Start.DateTime != moved.Start.DateTime {
		t.Errorf("mirror start = %s, want %s", mirrors[0].Start.DateTime, moved.Start.DateTime)
	}
	if got := f.mem.Calls(calendar.MethodInsert); got != 0 {
		t.Errorf("inserted %d events, want 0", got)
	}
	tr := res.Targets[0]
	if len(tr.Filter(ActionUpdated)) != 1 || len(tr.Filter(ActionCreated)) != 0 {
		t.Errorf("updated/created = %d/%d, want 1/0", len(tr.Filter(ActionUpdated)), len(tr.Filter(ActionCreated)))
	}
}

func TestSyncRule_KeepsMirrorWithoutSourceID(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	tags := f.cfg.RuleTags(testRule)
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	odd := mirrorOf("no-source", "", workCal, tags, start)
	delete(odd.ExtendedProperties.Private, provenance.SourceEventID)
	f.mem.Put(personalCal, odd)

	res := f.sync(t, false)

	if c := res.Counts(); c.Deleted != 0 {
		t.Errorf("Counts() = %+v, want nothing deleted", c)
	}
	if n := len(f.mem.Events(personalCal)); n != 1 {
		t.Errorf("personal calendar has %d events, want 1", n)
	}
}

func TestSyncRule_LoopPrevention(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"mirror-a", "mirror-b"} {
		ev := timedEvent(id, "Busy", start, start.Add(time.Hour))
		ev.ExtendedProperties = &gcal.EventExtendedProperties{Private: map[string]string{
			"calmirror_synced":           "true",
			"calmirror_personal_to_work": "true",
			provenance.SourceEventID:     "elsewhere",
		}}
		f.mem.Put(workCal, ev)
	}

	res := f.sync(t, false)

	if n := len(f.mem.Events(personalCal)); n != 0 {
		t.Errorf("personal calendar has %d events, want 0", n)
	}
	if c := res.Counts(); c.Skipped != 2 || c.Synced != 0 {
		t.Errorf("Counts() = %+v, want 2 skipped", c)
	}
}

func TestSyncRule_PrivacyLaw(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main", PrivacyMode: "private", PrivacyLabel: "Away", ShowTime: true})
	secrets := []string{"Team Sync", "Quarterly numbers", "Room 4", "Offsite", "Board review"}

	f.mem.Put(workCal, teamSync())
	f.mem.Put(workCal, allDayEvent("offsite", "Offsite", "2024-01-12", "2024-01-13"))
	board := timedEvent("board", "Board review", testNow.Add(3*time.Hour), testNow.Add(4*time.Hour))
	board.Description = "Quarterly numbers again"
	board.Visibility = "default"
	f.mem.Put(workCal, board)
	f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 3 {
		t.Fatalf("personal calendar has %d events, want 3", len(mirrors))
	}
	for _, m := range mirrors {
		if m.Summary != "Away" && !strings.HasPrefix(m.Summary, "Away - ") {
			t.Errorf("Summary = %q, want privacy label", m.Summary)
		}
		if m.Description != scenarioFooter || m.Location != "" || len(m.Attendees) != 0 {
			t.Errorf("%s leaks details: description=%q location=%q attendees=%d",
				m.Summary, m.Description, m.Location, len(m.Attendees))
		}
		for _, s := range secrets {
			if strings.Contains(m.Summary, s) || strings.Contains(m.Description, s) {
				t.Errorf("mirror %q contains %q", m.Summary, s)
			}
		}
	}
}

func TestSyncRule_VisibilityOverride(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main", PrivacyMode: "public"})
	ev := teamSync()
	ev.Visibility = "private"
	f.mem.Put(workCal, ev)

	f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 1 || mirrors[0].Summary != "Busy" || mirrors[0].Location != "" {
		t.Errorf("mirror = %+v, want private transform", mirrors)
	}
}

func TestSyncRule_AllDayStaysDateOnly(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	f.mem.Put(workCal, allDayEvent("offsite", "Offsite", "2024-01-12", "2024-01-13"))

	f.sync(t, false)
	f.sync(t, false)

	mirrors := f.mem.Events(personalCal)
	if len(mirrors) != 1 {
		t.Fatalf("personal calendar has %d events, want 1", len(mirrors))
	}
	m := mirrors[0]
	if m.Start.Date != "2024-01-12" || m.Start.DateTime != "" || m.End.Date != "2024-01-13" {
		t.Errorf("Start/End = %+v/%+v, want date-only", m.Start, m.End)
	}
	if m.Summary != "Busy" {
		t.Errorf("Summary = %q, want no time suffix", m.Summary)
	}
}

func TestSyncRule_IdenticalWindowsStayDistinct(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	start := time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC)
	f.mem.Put(workCal, timedEvent("one", "Interview", start, start.Add(time.Hour)))
	f.mem.Put(workCal, timedEvent("two", "Interview", start, start.Add(time.Hour)))

	f.sync(t, false)
	f.sync(t, false)

	var sources []string
	for _, m := range f.mem.Events(personalCal) {
		sources = append(sources, m.ExtendedProperties.Private[provenance.SourceEventID])
	}
	slices.Sort(sources)
	if strings.Join(sources, ",") != "one,two" {
		t.Errorf("mirror sources = %v, want one mirror each", sources)
	}
}

func TestSyncRule_DegradedFetchSkipsDeletion(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	f.mem.Put(workCal, teamSync())
	f.sync(t, false)

	f.mem.Fail(calendar.MethodList, workCal, errors.New("backend unavailable"))
	res := f.sync(t, false)

	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	if n := len(f.mem.Events(personalCal)); n != 1 {
		t.Errorf("personal calendar has %d events, want mirror kept", n)
	}
	if c := res.Counts(); c.Deleted != 0 {
		t.Errorf("Counts() = %+v, want no deletions", c)
	}
	ws := res.AllWarnings()
	if len(ws) != 2 {
		t.Errorf("AllWarnings() = %v, want rule and target warnings", ws)
	}
}

func TestSyncRule_ApplyFailureContinues(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	f.mem.Put(workCal, timedEvent("bad", "Broken", start, start.Add(time.Hour)))
	f.mem.Put(workCal, timedEvent("good", "Fine", start.Add(2*time.Hour), start.Add(3*time.Hour)))
	f.mem.FailWith(func(c calendar.Call) error {
		if c.Method == calendar.MethodInsert && c.Event != nil && c.Event.Summary == "Broken" {
			return errors.New("quota exceeded")
		}
		return nil
	})

	res, err := f.rec.SyncRule(context.Background(), f.rule(), false)
	if err != nil {
		t.Fatalf("SyncRule() error = %v, want per-event failure only", err)
	}
	c := res.Counts()
	if c.Failed != 1 || c.Synced != 1 {
		t.Errorf("Counts() = %+v, want 1 synced 1 failed", c)
	}
	if res.Success() {
		t.Error("Success() = true with a failed event")
	}
	failed := res.Targets[0].Filter(ActionFailed)
	if len(failed) != 1 || !strings.Contains(failed[0].Error, "quota exceeded") {
		t.Errorf("failed = %+v", failed)
	}
}

func TestSyncRule_DryRun(t *testing.T) {
	f := newFixture(t, privateTarget("personal.main"))
	f.mem.Put(workCal, teamSync())

	res := f.sync(t, true)
	if f.mem.Mutations() != 0 {
		t.Errorf("dry run made %d mutating calls", f.mem.Mutations())
	}
	plan := res.Plan()
	if len(plan) != 1 || plan[0].Action != ActionCreated || plan[0].Title != "Busy - 10:00" {
		t.Errorf("Plan() = %+v, want one create of the rendered title", plan)
	}

	f.sync(t, false)
	f.mem.Remove(workCal, "team-sync")
	f.mem.ResetCalls()

	res = f.sync(t, true)
	if f.mem.Mutations() != 0 {
		t.Errorf("dry run made %d mutating calls", f.mem.Mutations())
	}
	plan = res.Plan()
	if len(plan) != 1 || plan[0].Action != ActionDeleted {
		t.Errorf("Plan() = %+v, want one delete", plan)
	}
	if n := len(f.mem.Events(personalCal)); n != 1 {
		t.Errorf("personal calendar has %d events, want mirror untouched", n)
	}
}

func TestSyncRule_ResolutionErrors(t *testing.T) {
	tests := map[string]struct {
		mutate     func(f *fixture)
		wantKind   Kind
		ruleFails  bool
		wantTarget string
	}{
		"unknown source": {
			mutate:    func(f *fixture) { f.cfg.SyncRules[0].SourceCalendar = "nope.main" },
			wantKind:  KindConfig,
			ruleFails: true,
		},
		"source auth": {
			mutate:    func(f *fixture) { f.sessions.fail["work"] = errors.New("no token") },
			wantKind:  KindAuth,
			ruleFails: true,
		},
		"unknown destination": {
			mutate: func(f *fixture) {
				f.cfg.SyncRules[0].Destination = append(f.cfg.SyncRules[0].Destination,
					config.SyncTarget{Calendar: "nope.main"})
			},
			wantTarget: "config error",
		},
		"destination auth": {
			mutate: func(f *fixture) {
				f.cfg.SyncRules[0].Destination = []config.SyncTarget{{Calendar: "personal.main"}}
				f.sessions.fail["personal"] = errors.New("no token")
			},
			wantTarget: "auth error",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, config.SyncTarget{Calendar: "personal.family"})
			f.mem.Put(workCal, teamSync())
			tt.mutate(f)

			res, err := f.rec.SyncRule(context.Background(), f.rule(), false)
			if tt.ruleFails {
				if !IsKind(err, tt.wantKind) {
					t.Fatalf("SyncRule() error = %v, want %s", err, tt.wantKind)
				}
				if res.Error == "" || res.Success() {
					t.Errorf("RuleResult = %+v, want failed", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("SyncRule() error = %v", err)
			}
			last := res.Targets[len(res.Targets)-1]
			if !strings.Contains(last.Error, tt.wantTarget) {
				t.Errorf("target error = %q, want %q", last.Error, tt.wantTarget)
			}
		})
	}
}

func TestSyncRule_DisabledTargetIgnored(t *testing.T) {
	f := newFixture(t,
		config.SyncTarget{Calendar: "personal.main"},
		config.SyncTarget{Calendar: "personal.family", Enabled: boolPtr(false)},
	)
	f.mem.Put(workCal, teamSync())

	res := f.sync(t, false)

	if len(res.Targets) != 1 {
		t.Errorf("Targets = %d, want 1", len(res.Targets))
	}
	if n := len(f.mem.Events(familyCal)); n != 0 {
		t.Errorf("disabled target received %d events", n)
	}
}

func TestSyncAll(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	f.cfg.SyncRules = append(f.cfg.SyncRules,
		config.SyncRule{ID: "broken", SourceCalendar: "nope.main", Destination: []config.SyncTarget{{Calendar: "personal.family"}}},
		config.SyncRule{ID: "family", SourceCalendar: "work.main", Destination: []config.SyncTarget{{Calendar: "personal.family"}}},
	)
	f.mem.Put(workCal, teamSync())

	reg := prometheus.NewRegistry()
	var done []string
	rec := NewReconciler(f.cfg, f.sessions,
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.MustNew(reg)),
		WithRuleDone(func(rr *RuleResult) { done = append(done, rr.RuleID) }),
	)

	run := rec.SyncAll(context.Background(), nil, false)

	if strings.Join(done, ",") != testRule+",broken,family" {
		t.Errorf("rules run = %v", done)
	}
	if run.Success() {
		t.Error("Success() = true with a broken rule")
	}
	if failed := run.Failed(); len(failed) != 1 || failed[0].RuleID != "broken" {
		t.Errorf("Failed() = %v", failed)
	}
	if c := run.Counts(); c.Synced != 2 {
		t.Errorf("Counts() = %+v, want 2 synced", c)
	}
	if n := len(f.mem.Events(familyCal)); n != 1 {
		t.Errorf("family calendar has %d events, want 1 after broken rule", n)
	}
	got, err := testutil.GatherAndCount(reg, "calmirror_rule_runs_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("rule_runs_total series = %d, want 3", got)
	}
}

func TestSyncAll_Cancelled(t *testing.T) {
	f := newFixture(t, config.SyncTarget{Calendar: "personal.main"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := f.rec.SyncAll(ctx, nil, false)
	if len(run.Rules) != 0 {
		t.Errorf("Rules = %d, want none after cancellation", len(run.Rules))
	}
}
