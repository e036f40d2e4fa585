package ics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/klauern/calmirror/internal/logging"
)

const maxOccurrencesPerEvent = 5000

// occurrence is one concrete instance of a VEVENT inside a window.
type occurrence struct {
	ID    string
	Event vevent
	Start time.Time
	End   time.Time
}

// expand turns parsed VEVENTs into occurrences overlapping [from, to).
// RECURRENCE-ID overrides replace the instance they name. EXDATEs remove
// instances.
func expand(events []vevent, from, to time.Time, logger *slog.Logger) []occurrence {
	overrides := make(map[string][]vevent)
	var bases []vevent
	for _, ev := range events {
		if ev.isOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []occurrence
	for _, ev := range bases {
		if ev.RRule == "" {
			if overlaps(ev.Start, ev.End, from, to) {
				out = append(out, occurrence{ID: ev.UID, Event: ev, Start: ev.Start, End: ev.End})
			}
			continue
		}
		occ, err := expandRecurring(ev, overrides[ev.UID], from, to, logger)
		if err != nil {
			logger.Warn("skipping recurring event", logging.Event(ev.UID), logging.Err(err))
			continue
		}
		out = append(out, occ...)
	}
	return out
}

func expandRecurring(ev vevent, overrides []vevent, from, to time.Time, logger *slog.Logger) ([]occurrence, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", ev.RRule, err)
	}

	var set rrule.Set
	set.DTStart(ev.Start)
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Widen the lower bound so instances already in progress are included.
	starts := set.Between(from.Add(-dur).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		logger.Warn("recurring event truncated",
			logging.Event(ev.UID),
			slog.Int("occurrences", len(starts)),
			slog.Int("kept", maxOccurrencesPerEvent),
		)
		starts = starts[:maxOccurrencesPerEvent]
	}

	out := make([]occurrence, 0, len(starts))
	for _, start := range starts {
		occ := occurrence{
			ID:    instanceID(ev.UID, start, ev.AllDay),
			Event: ev,
			Start: start,
			End:   start.Add(dur),
		}
		if ov, ok := findOverride(overrides, start); ok {
			occ.Event = ov
			occ.Start, occ.End = ov.Start, ov.End
		}
		if overlaps(occ.Start, occ.End, from, to) {
			out = append(out, occ)
		}
	}
	return out, nil
}

func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return vevent{}, false
}

// instanceID derives a stable id for one instance of a recurring event.
func instanceID(uid string, start time.Time, allDay bool) string {
	if allDay {
		return uid + "_" + start.Format(layoutDate)
	}
	return uid + "_" + start.UTC().Format(layoutUTC)
}

func overlaps(start, end, from, to time.Time) bool {
	if end.Equal(start) {
		return !start.Before(from) && start.Before(to)
	}
	return end.After(from) && start.Before(to)
}
