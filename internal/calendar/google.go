package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// sendUpdatesNone suppresses attendee notifications for mirror writes.
const sendUpdatesNone = "none"

// Google is a Session backed by the Google Calendar v3 API.
type Google struct {
	svc *gcal.Service
}

// NewGoogle builds a Session from an authorized HTTP client.
func NewGoogle(ctx context.Context, client *http.Client) (*Google, error) {
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Google{svc: svc}, nil
}

// NewGoogleFromService wraps an existing service.
func NewGoogleFromService(svc *gcal.Service) *Google {
	return &Google{svc: svc}
}

func (g *Google) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*Page, error) {
	call := g.svc.Events.List(calendarID).SingleEvents(opts.SingleEvents).Context(ctx)
	if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if !opts.TimeMax.IsZero() {
		call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
	}
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}
	if len(opts.PrivateProperties) > 0 {
		call = call.PrivateExtendedProperty(opts.PrivateProperties...)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events in %s: %w", calendarID, err)
	}
	return &Page{Events: resp.Items, NextPageToken: resp.NextPageToken}, nil
}

func (g *Google) GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error) {
	ev, err := g.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return ev, nil
}

func (g *Google) InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	created, err := g.svc.Events.Insert(calendarID, ev).SendUpdates(sendUpdatesNone).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event into %s: %w", calendarID, err)
	}
	return created, nil
}

func (g *Google) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
	updated, err := g.svc.Events.Update(calendarID, eventID, ev).SendUpdates(sendUpdatesNone).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", eventID, err)
	}
	return updated, nil
}

func (g *Google) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := g.svc.Events.Delete(calendarID, eventID).SendUpdates(sendUpdatesNone).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

func (g *Google) GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error) {
	cal, err := g.svc.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", calendarID, err)
	}
	return cal, nil
}
