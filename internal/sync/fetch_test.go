package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/metrics"
)

const fallbackMetric = `
# HELP calmirror_fetch_fallbacks_total Windowed event listings that fell back to an unranged query.
# TYPE calmirror_fetch_fallbacks_total counter
calmirror_fetch_fallbacks_total 1
`

func seedWindowEvents(mem *calendar.Memory) {
	day := 24 * time.Hour
	mem.Put(workCal, timedEvent("past", "Long ago", testNow.Add(-40*day), testNow.Add(-40*day+time.Hour)))
	mem.Put(workCal, timedEvent("soon", "Tomorrow", testNow.Add(day), testNow.Add(day+time.Hour)))
	mem.Put(workCal, timedEvent("later", "Far away", testNow.Add(40*day), testNow.Add(40*day+time.Hour)))
	cancelled := timedEvent("gone", "Cancelled", testNow.Add(2*day), testNow.Add(2*day+time.Hour))
	cancelled.Status = StatusCancelled
	mem.Put(workCal, cancelled)
}

func ids(snap *Snapshot) []string {
	var out []string
	for _, rec := range snap.Records {
		out = append(out, rec.ID)
	}
	return out
}

func TestFetcher_Fetch_Window(t *testing.T) {
	tests := map[string]struct {
		past, future time.Duration
		want         []string
	}{
		"default window": {want: []string{"soon"}},
		"wider past":     {past: 50 * 24 * time.Hour, want: []string{"past", "soon"}},
		"wider future":   {future: 50 * 24 * time.Hour, want: []string{"soon", "later"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mem := calendar.NewMemory()
			mem.AddCalendar(workCal, "Work")
			seedWindowEvents(mem)

			f := &Fetcher{Past: tt.past, Future: tt.future, Now: func() time.Time { return testNow }, Logger: logging.Discard()}
			snap, err := f.Fetch(context.Background(), mem, workCal)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if snap.CalendarName != "Work" {
				t.Errorf("CalendarName = %q, want Work", snap.CalendarName)
			}
			if got := strings.Join(ids(snap), ","); got != strings.Join(tt.want, ",") {
				t.Errorf("Fetch() ids = %s, want %s", got, strings.Join(tt.want, ","))
			}
		})
	}
}

func TestFetcher_Fetch_Pagination(t *testing.T) {
	mem := calendar.NewMemory()
	mem.AddCalendar(workCal, "Work")
	for i := range windowedPageSize + 5 {
		start := testNow.Add(time.Duration(i) * time.Minute)
		mem.Put(workCal, timedEvent("", "Slot", start, start.Add(time.Minute)))
	}

	f := &Fetcher{Now: func() time.Time { return testNow }, Logger: logging.Discard()}
	snap, err := f.Fetch(context.Background(), mem, workCal)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(snap.Records) != windowedPageSize+5 {
		t.Errorf("Fetch() returned %d records, want %d", len(snap.Records), windowedPageSize+5)
	}
	if calls := mem.Calls(calendar.MethodList); calls != 2 {
		t.Errorf("ListEvents calls = %d, want 2", calls)
	}
}

func TestFetcher_Fetch_Fallback(t *testing.T) {
	mem := calendar.NewMemory()
	mem.AddCalendar(workCal, "Work")
	seedWindowEvents(mem)
	mem.FailWith(func(c calendar.Call) error {
		if c.Method == calendar.MethodList && !c.Options.TimeMin.IsZero() {
			return errors.New("time range rejected")
		}
		return nil
	})

	reg := prometheus.NewRegistry()
	f := &Fetcher{
		Now:     func() time.Time { return testNow },
		Logger:  logging.Discard(),
		Metrics: metrics.MustNew(reg),
	}
	snap, err := f.Fetch(context.Background(), mem, workCal)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := strings.Join(ids(snap), ","); got != "past,soon,later" {
		t.Errorf("Fetch() ids = %s, want unranged set without cancelled", got)
	}
	if err := testutil.GatherAndCompare(reg, strings.NewReader(fallbackMetric),
		"calmirror_fetch_fallbacks_total"); err != nil {
		t.Error(err)
	}
}

func TestFetcher_Fetch_Degraded(t *testing.T) {
	tests := map[string]struct {
		method string
	}{
		"list fails twice": {method: calendar.MethodList},
		"calendar missing": {method: calendar.MethodGetCalendar},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mem := calendar.NewMemory()
			mem.AddCalendar(workCal, "Work")
			seedWindowEvents(mem)
			mem.Fail(tt.method, workCal, errors.New("backend unavailable"))

			f := &Fetcher{Now: func() time.Time { return testNow }, Logger: logging.Discard()}
			snap, err := f.Fetch(context.Background(), mem, workCal)
			if err == nil {
				t.Fatal("Fetch() error = nil, want degraded")
			}
			if !IsDegraded(err) || !IsKind(err, KindAPI) {
				t.Errorf("Fetch() error = %v, want degraded api error", err)
			}
			if snap == nil || len(snap.Records) != 0 {
				t.Errorf("Fetch() snapshot = %+v, want empty", snap)
			}
		})
	}
}

func TestSnapshot_IDs(t *testing.T) {
	mem := calendar.NewMemory()
	mem.AddCalendar(workCal, "Work")
	seedWindowEvents(mem)
	f := &Fetcher{Past: 50 * 24 * time.Hour, Now: func() time.Time { return testNow }, Logger: logging.Discard()}
	snap, err := f.Fetch(context.Background(), mem, workCal)
	if err != nil {
		t.Fatal(err)
	}
	got := snap.IDs()
	if _, ok := got["past"]; !ok || len(got) != 2 {
		t.Errorf("IDs() = %v", got)
	}
	if _, ok := got["gone"]; ok {
		t.Error("IDs() contains a cancelled event")
	}
}
