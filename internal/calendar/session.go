// Package calendar defines the remote calendar capability the reconciler
// depends on, with a Google Calendar implementation and an in-memory double.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/klauern/calmirror/internal/model"
)

// Session is an authenticated handle to one account's calendars.
type Session interface {
	ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*Page, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error)
}

// ListOptions narrows an event listing. Zero times leave that side unbounded.
type ListOptions struct {
	TimeMin      time.Time
	TimeMax      time.Time
	MaxResults   int64
	PageToken    string
	SingleEvents bool
	// PrivateProperties are "key=value" filters that must all match.
	PrivateProperties []string
}

// Page is one page of a listing.
type Page struct {
	Events        []*gcal.Event
	NextPageToken string
}

// IsNotFound reports whether err is a 404 or 410 from the remote service.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}

// EventBounds parses the start and end of ev. All-day events report AllDay.
func EventBounds(ev *gcal.Event) (start, end model.EventTime, err error) {
	if ev == nil {
		return start, end, errors.New("nil event")
	}
	start, err = ParseEventDateTime(ev.Start)
	if err != nil {
		return start, end, fmt.Errorf("event %s start: %w", ev.Id, err)
	}
	end, err = ParseEventDateTime(ev.End)
	if err != nil {
		return start, end, fmt.Errorf("event %s end: %w", ev.Id, err)
	}
	return start, end, nil
}

// ParseEventDateTime decodes a remote start or end block. A populated date
// field wins over dateTime.
func ParseEventDateTime(dt *gcal.EventDateTime) (model.EventTime, error) {
	if dt == nil {
		return model.EventTime{}, errors.New("missing time block")
	}
	if dt.Date != "" {
		return model.ParseDate(dt.Date)
	}
	if dt.DateTime == "" {
		return model.EventTime{}, errors.New("empty time block")
	}
	et, err := model.ParseDateTime(dt.DateTime)
	if err != nil {
		return et, err
	}
	if dt.TimeZone != "" {
		if loc, lerr := time.LoadLocation(dt.TimeZone); lerr == nil {
			et.Time = et.Time.In(loc)
		}
	}
	return et, nil
}

// FormatEventDateTime encodes et in the same representation it was read in.
func FormatEventDateTime(et model.EventTime) *gcal.EventDateTime {
	if et.AllDay {
		return &gcal.EventDateTime{Date: et.Time.Format(model.DateLayout)}
	}
	return &gcal.EventDateTime{DateTime: et.Time.Format(time.RFC3339)}
}

// Overlaps reports whether ev intersects [min, max). Zero bounds are open.
// Events whose times cannot be parsed never match.
func Overlaps(ev *gcal.Event, min, max time.Time) bool {
	if min.IsZero() && max.IsZero() {
		return true
	}
	start, end, err := EventBounds(ev)
	if err != nil {
		return false
	}
	if !min.IsZero() && !end.Time.After(min) {
		return false
	}
	if !max.IsZero() && !start.Time.Before(max) {
		return false
	}
	return true
}

// MatchesPrivate reports whether ev carries every "key=value" filter in its
// private extended properties.
func MatchesPrivate(ev *gcal.Event, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	props := PrivateProperties(ev)
	for _, f := range filters {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return false
		}
		got, present := props[key]
		if !present || got != value {
			return false
		}
	}
	return true
}

// PrivateProperties returns ev's private extended properties, or nil.
func PrivateProperties(ev *gcal.Event) model.Provenance {
	if ev == nil || ev.ExtendedProperties == nil {
		return nil
	}
	return model.Provenance(ev.ExtendedProperties.Private)
}
