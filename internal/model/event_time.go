package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of date-only (all-day) boundaries.
const DateLayout = "2006-01-02"

// EventTime is an event boundary. All-day boundaries carry only a date and
// must round-trip as date-only values.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

// Date returns a date-only boundary at midnight UTC of t's calendar day.
func Date(t time.Time) EventTime {
	y, m, d := t.Date()
	return EventTime{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), AllDay: true}
}

// At returns a timed boundary.
func At(t time.Time) EventTime {
	return EventTime{Time: t}
}

// ParseDate parses a "2006-01-02" value into a date-only boundary.
func ParseDate(s string) (EventTime, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return EventTime{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return EventTime{Time: t, AllDay: true}, nil
}

// ParseDateTime parses an RFC3339 timestamp into a timed boundary.
func ParseDateTime(s string) (EventTime, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return EventTime{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return EventTime{Time: t}, nil
}

// IsZero reports whether the boundary is unset.
func (e EventTime) IsZero() bool {
	return e.Time.IsZero()
}

// String renders the boundary in its wire form.
func (e EventTime) String() string {
	if e.IsZero() {
		return ""
	}
	if e.AllDay {
		return e.Time.Format(DateLayout)
	}
	return e.Time.Format(time.RFC3339)
}

// MarshalJSON encodes the boundary as its wire string.
func (e EventTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// MarshalYAML encodes the boundary as its wire string.
func (e EventTime) MarshalYAML() (any, error) {
	return e.String(), nil
}
