package sync

import (
	"context"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/metrics"
	"github.com/klauern/calmirror/internal/model"
)

const (
	// DefaultWindow is how far before and after now the Fetcher looks.
	DefaultWindow = 30 * 24 * time.Hour

	windowedPageSize = 1000
	fallbackPageSize = 2500
)

// Snapshot is the result of fetching one calendar.
type Snapshot struct {
	CalendarID   string
	CalendarName string
	Records      []model.Record
}

// IDs returns the set of record ids in the snapshot.
func (s *Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Records))
	for _, rec := range s.Records {
		ids[rec.ID] = struct{}{}
	}
	return ids
}

// Fetcher retrieves a time-windowed set of events from one calendar.
type Fetcher struct {
	Past    time.Duration
	Future  time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return logging.Default()
}

func (f *Fetcher) window() (time.Time, time.Time) {
	past, future := f.Past, f.Future
	if past <= 0 {
		past = DefaultWindow
	}
	if future <= 0 {
		future = DefaultWindow
	}
	now := f.now()
	return now.Add(-past), now.Add(future)
}

// Fetch returns the calendar's live events in the window. When both the
// windowed listing and the unranged fallback fail, it returns an empty
// snapshot together with a degraded KindAPI error.
func (f *Fetcher) Fetch(ctx context.Context, s calendar.Session, calendarID string) (*Snapshot, error) {
	logger := f.logger().With(logging.Calendar(calendarID))
	snap := &Snapshot{CalendarID: calendarID}

	meta, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		logger.Warn("cannot access calendar", logging.Err(err))
		return snap, &Error{Kind: KindAPI, Op: "get calendar", Ref: calendarID, Err: err, Degraded: true}
	}
	snap.CalendarName = meta.Summary

	min, max := f.window()
	events, err := listAll(ctx, s, calendarID, calendar.ListOptions{
		TimeMin:      min,
		TimeMax:      max,
		MaxResults:   windowedPageSize,
		SingleEvents: true,
	})
	if err != nil {
		logger.Warn("windowed fetch failed, retrying without time range", logging.Err(err))
		f.Metrics.IncFetchFallback()
		events, err = listAll(ctx, s, calendarID, calendar.ListOptions{
			MaxResults:   fallbackPageSize,
			SingleEvents: true,
		})
		if err != nil {
			logger.Error("fallback fetch failed, treating calendar as empty", logging.Err(err))
			return snap, &Error{Kind: KindAPI, Op: "list events", Ref: calendarID, Err: err, Degraded: true}
		}
	}

	now := f.now()
	for _, ev := range events {
		if ev.Status == StatusCancelled {
			continue
		}
		rec, derr := DecodeSource(ev, calendarID, now)
		if derr != nil {
			logger.Warn("skipping undecodable event", logging.Event(ev.Id), logging.Err(derr))
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	logger.Debug("fetched events", logging.Count(len(snap.Records)))
	return snap, nil
}

// listAll follows page tokens until the listing is exhausted.
func listAll(ctx context.Context, s calendar.Session, calendarID string, opts calendar.ListOptions) ([]*gcal.Event, error) {
	var events []*gcal.Event
	for {
		page, err := s.ListEvents(ctx, calendarID, opts)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		if page.NextPageToken == "" {
			return events, nil
		}
		opts.PageToken = page.NextPageToken
	}
}
