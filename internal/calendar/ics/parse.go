package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/klauern/calmirror/internal/logging"
)

// ProvenanceProperty carries one "key=value" provenance pair on a VEVENT.
const ProvenanceProperty = "X-CALMIRROR-PROVENANCE"

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// vevent is a VEVENT before recurrence expansion.
type vevent struct {
	UID         string
	Seq         int
	Summary     string
	Description string
	Location    string
	Class       string
	Status      string
	Attendees   []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time

	Provenance map[string]string
}

func (v vevent) isOverride() bool {
	return v.Recurrence != nil
}

// feed is a parsed subscription.
type feed struct {
	Name   string
	Events []vevent
}

// parseFeed parses an ICS payload. Malformed VEVENTs are logged and skipped.
func parseFeed(body []byte, logger *slog.Logger) (*feed, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}

	out := &feed{}
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, "X-WR-CALNAME") {
			out.Name = p.Value
		}
	}

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			logger.Warn("skipping malformed VEVENT", logging.Err(perr))
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.Class = strings.ToLower(propValue(ve, ical.ComponentPropertyClass))
	out.Status = strings.ToLower(propValue(ve, ical.ComponentPropertyStatus))

	for _, a := range ve.Attendees() {
		if email := a.Email(); email != "" {
			out.Attendees = append(out.Attendees, email)
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("event %s: missing DTSTART", out.UID)
	}
	start, allDay, err := parseTimeProp(dtStart)
	if err != nil {
		return out, fmt.Errorf("event %s DTSTART: %w", out.UID, err)
	}
	out.Start, out.AllDay = start, allDay

	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		end, _, err := parseTimeProp(dtEnd)
		if err != nil {
			return out, fmt.Errorf("event %s DTEND: %w", out.UID, err)
		}
		out.End = end
	case allDay:
		out.End = out.Start.AddDate(0, 0, 1)
	default:
		out.End = out.Start
	}

	out.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p.ICalParameters)
		for part := range strings.SplitSeq(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		t, _, err := parseTimeProp(rid)
		if err == nil {
			out.Recurrence = &t
		}
	}

	for _, p := range ve.Properties {
		if !strings.EqualFold(p.IANAToken, ProvenanceProperty) {
			continue
		}
		key, value, ok := strings.Cut(p.Value, "=")
		if !ok || key == "" {
			continue
		}
		if out.Provenance == nil {
			out.Provenance = make(map[string]string)
		}
		out.Provenance[key] = value
	}

	return out, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseTimeProp decodes a DTSTART-like property, honoring VALUE=DATE and TZID.
func parseTimeProp(p *ical.IANAProperty) (time.Time, bool, error) {
	val := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(val, "T")
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if allDay {
		t, err := time.Parse(layoutDate, val)
		return t, true, err
	}
	t, err := parseICSTime(val, propLocation(p.ICalParameters))
	return t, false, err
}

func propLocation(params map[string][]string) *time.Location {
	if tz := params["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return time.UTC
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(layoutUTC, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation(layoutLocal, v, loc)
	default:
		return time.ParseInLocation(layoutDate, v, time.UTC)
	}
}
