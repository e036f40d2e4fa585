package sync

import (
	"errors"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/provenance"
)

// StatusCancelled marks events the Fetcher drops.
const StatusCancelled = "cancelled"

// DecodeSource normalizes a remote event read from a source calendar. The
// record's identity is the remote event itself. Existing provenance is kept
// verbatim; otherwise a fresh map is initialized.
func DecodeSource(ev *gcal.Event, sourceCalendarID string, now time.Time) (model.Record, error) {
	rec, err := decode(ev)
	if err != nil {
		return rec, err
	}
	rec.SourceCalendarID = sourceCalendarID
	rec.SourceEventID = ev.Id
	if len(rec.Provenance) == 0 {
		rec.Provenance = provenance.Initial(sourceCalendarID, ev.Id, now)
	}
	return rec, nil
}

// DecodeDestination normalizes a remote event read from a destination
// calendar. Provenance is preserved verbatim and never initialized.
func DecodeDestination(ev *gcal.Event) (model.Record, error) {
	rec, err := decode(ev)
	if err != nil {
		return rec, err
	}
	rec.SourceEventID, rec.SourceCalendarID = provenance.SourceIdentity(rec.Provenance)
	if ts := rec.Provenance.Get(provenance.LastSynced); ts != "" {
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			rec.LastSynced = t
		}
	}
	rec.SyncCount = rec.Provenance.Int(provenance.SyncCount)
	return rec, nil
}

func decode(ev *gcal.Event) (model.Record, error) {
	if ev == nil {
		return model.Record{}, errors.New("nil event")
	}
	start, end, err := calendar.EventBounds(ev)
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{
		ID:          ev.Id,
		Title:       ev.Summary,
		Start:       start,
		End:         end,
		Description: ev.Description,
		Location:    ev.Location,
		Visibility:  ev.Visibility,
		Status:      ev.Status,
	}
	for _, a := range ev.Attendees {
		if a == nil || a.Email == "" {
			continue
		}
		rec.Attendees = append(rec.Attendees, model.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			Optional:       a.Optional,
		})
	}
	if props := calendar.PrivateProperties(ev); len(props) > 0 {
		rec.Provenance = props.Clone()
	}
	return rec, nil
}

// EncodeOptions carries the per-event inputs to Encode.
type EncodeOptions struct {
	// Mode is the effective privacy mode after visibility overrides.
	Mode model.PrivacyMode
	// SourceCalendarName is shown in the footer.
	SourceCalendarName string
	// Base is the provenance the new fields are merged over. When nil the
	// record's own provenance is used.
	Base model.Provenance
	// SyncCount is written to sync_count.
	SyncCount int
	Now       time.Time
}

// Encode builds the remote payload for a mirror of rec in target.
func Encode(rec model.Record, target config.SyncTarget, tags provenance.Tags, opts EncodeOptions) *gcal.Event {
	footer := Footer(tags.Instance, opts.SourceCalendarName)
	ev := &gcal.Event{
		Start: calendar.FormatEventDateTime(rec.Start),
		End:   calendar.FormatEventDateTime(rec.End),
	}

	switch opts.Mode {
	case model.PrivacyPrivate:
		ev.Summary = decorateTitle(target.TitlePrefix, privateTitle(target, rec.Start), target.TitleSuffix)
		ev.Description = footer
	default:
		ev.Summary = decorateTitle(target.TitlePrefix, rec.Title, target.TitleSuffix)
		ev.Description = rec.Description + footer
		ev.Location = rec.Location
		for _, a := range rec.Attendees {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{
				Email:          a.Email,
				DisplayName:    a.DisplayName,
				ResponseStatus: a.ResponseStatus,
				Optional:       a.Optional,
			})
		}
	}

	if target.EventColor != "" {
		ev.ColorId = strings.TrimSpace(target.EventColor)
	}

	base := opts.Base
	if base == nil {
		base = rec.Provenance
	}
	stamp := tags.Stamp(rec.SourceCalendarID, rec.SourceEventID, opts.SyncCount, opts.Now)
	ev.ExtendedProperties = &gcal.EventExtendedProperties{
		Private: provenance.Merge(base, stamp),
	}
	return ev
}
