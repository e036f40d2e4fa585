package model

import "time"

// Record is the normalized form of a calendar event, decoded from the remote
// API on every run. It is never persisted locally.
type Record struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Start       EventTime  `json:"start" yaml:"start"`
	End         EventTime  `json:"end" yaml:"end"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string     `json:"location,omitempty" yaml:"location,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty" yaml:"attendees,omitempty"`
	Visibility  string     `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Status      string     `json:"status,omitempty" yaml:"status,omitempty"`

	// Identity of the source event this record mirrors, or of itself when
	// decoded from a source calendar.
	SourceCalendarID string `json:"source_calendar_id,omitempty" yaml:"source_calendar_id,omitempty"`
	SourceEventID    string `json:"source_event_id,omitempty" yaml:"source_event_id,omitempty"`

	Provenance Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	LastSynced time.Time  `json:"last_synced,omitzero" yaml:"last_synced,omitempty"`
	SyncCount  int        `json:"sync_count,omitempty" yaml:"sync_count,omitempty"`
}

// Attendee is an event participant. Only public mirrors carry attendees.
type Attendee struct {
	Email          string `json:"email" yaml:"email"`
	DisplayName    string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty" yaml:"response_status,omitempty"`
	Optional       bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// AllDay reports whether the event spans whole days rather than precise times.
func (r Record) AllDay() bool {
	return r.Start.AllDay
}

// Duration returns the span between start and end.
func (r Record) Duration() time.Duration {
	return r.End.Time.Sub(r.Start.Time)
}
