package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/klauern/calmirror/internal/calendar/ics"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/util"
)

// uidDomain qualifies event ids into globally unique iCalendar UIDs.
const uidDomain = "@" + util.AppName

// WriteICS writes records as a PUBLISH iCalendar document. stamp becomes
// every DTSTAMP so output is reproducible. All-day boundaries are written
// as DATE values and provenance as one X-CALMIRROR-PROVENANCE line per key.
func WriteICS(w io.Writer, calendarName string, records []model.Record, stamp time.Time) error {
	cal := ical.NewCalendarFor(util.AppName)
	cal.SetMethod(ical.MethodPublish)
	if calendarName != "" {
		cal.SetXWRCalName(calendarName)
	}

	for i := range records {
		if err := addEvent(cal, &records[i], stamp); err != nil {
			return err
		}
	}
	return cal.SerializeTo(w)
}

func addEvent(cal *ical.Calendar, rec *model.Record, stamp time.Time) error {
	if rec.ID == "" {
		return fmt.Errorf("event %q has no id", rec.Title)
	}
	if rec.Start.IsZero() {
		return fmt.Errorf("event %s has no start", rec.ID)
	}

	ev := cal.AddEvent(rec.ID + uidDomain)
	ev.SetDtStampTime(stamp)
	ev.SetSummary(rec.Title)

	end := rec.End
	if end.IsZero() {
		end = rec.Start
	}
	if rec.AllDay() {
		ev.SetAllDayStartAt(rec.Start.Time)
		ev.SetAllDayEndAt(end.Time)
	} else {
		ev.SetStartAt(rec.Start.Time)
		ev.SetEndAt(end.Time)
	}

	if rec.Description != "" {
		ev.SetDescription(rec.Description)
	}
	if rec.Location != "" {
		ev.SetLocation(rec.Location)
	}
	switch rec.Visibility {
	case "private":
		ev.SetClass(ical.ClassificationPrivate)
	case "public":
		ev.SetClass(ical.ClassificationPublic)
	}
	for _, a := range rec.Attendees {
		var params []ical.PropertyParameter
		if a.DisplayName != "" {
			params = append(params, ical.WithCN(a.DisplayName))
		}
		ev.AddAttendee(a.Email, params...)
	}
	if rec.SyncCount > 0 {
		ev.SetSequence(rec.SyncCount)
	}
	if !rec.LastSynced.IsZero() {
		ev.SetModifiedAt(rec.LastSynced)
	}

	for _, key := range rec.Provenance.Keys() {
		ev.AddProperty(ical.ComponentProperty(ics.ProvenanceProperty), key+"="+rec.Provenance[key])
	}
	return nil
}
