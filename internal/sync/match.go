package sync

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/provenance"
)

const (
	lookupSlack    = 24 * time.Hour
	lookupPageSize = 100

	// SearchPageSize is the page size of provenance searches.
	SearchPageSize = 250
)

// FindMirror looks for the rule's existing mirror of source in the
// destination calendar. Matching is by provenance identity only.
func FindMirror(ctx context.Context, s calendar.Session, destCalendarID string, source model.Record, tags provenance.Tags) (*gcal.Event, error) {
	events, err := listAll(ctx, s, destCalendarID, calendar.ListOptions{
		TimeMin:      source.Start.Time.Add(-lookupSlack),
		TimeMax:      source.End.Time.Add(lookupSlack),
		MaxResults:   lookupPageSize,
		SingleEvents: true,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup mirror of %s: %w", source.SourceEventID, err)
	}
	for _, ev := range events {
		props := calendar.PrivateProperties(ev)
		if !tags.OwnedByRule(props) {
			continue
		}
		evID, calID := provenance.SourceIdentity(props)
		if evID == source.SourceEventID && calID == source.SourceCalendarID {
			return ev, nil
		}
	}
	return nil, nil
}

// FindAllMirrors returns every mirror the rule produced in the destination
// from the given source calendar.
func FindAllMirrors(ctx context.Context, s calendar.Session, destCalendarID string, tags provenance.Tags, sourceCalendarID string) ([]*gcal.Event, error) {
	events, err := Search(ctx, s, destCalendarID, tags.RuleFilter())
	if err != nil {
		return nil, err
	}
	var mirrors []*gcal.Event
	for _, ev := range events {
		props := calendar.PrivateProperties(ev)
		if props.Get(provenance.SourceCalendarID) == sourceCalendarID {
			mirrors = append(mirrors, ev)
		}
	}
	return mirrors, nil
}

// Search lists every event in the calendar carrying the private property
// filter ("key=value"), across all pages and with no time bound.
func Search(ctx context.Context, s calendar.Session, calendarID, property string) ([]*gcal.Event, error) {
	events, err := listAll(ctx, s, calendarID, calendar.ListOptions{
		MaxResults:        SearchPageSize,
		SingleEvents:      true,
		PrivateProperties: []string{property},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s for %s: %w", calendarID, property, err)
	}
	return events, nil
}
