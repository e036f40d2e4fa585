// Package provenance implements the identifier scheme that marks mirrors as
// owned by a calmirror instance and, within it, by a specific sync rule.
package provenance

import (
	"maps"
	"strconv"
	"time"

	"github.com/klauern/calmirror/internal/model"
)

// Field names stamped into every mirror's private extended properties.
const (
	SourceEventID    = "source_event_id"
	SourceCalendarID = "source_calendar_id"
	LastSynced       = "last_synced"
	LastSyncHuman    = "last_sync_human"
	SyncCount        = "sync_count"
	SyncVersion      = "sync_version"
)

// Version is written to sync_version when a provenance map is first created.
const Version = "1"

// HumanLayout is the layout of last_sync_human.
const HumanLayout = "2006-01-02 15:04:05 UTC"

// Tags identifies an instance and one of its rules.
type Tags struct {
	Instance string
	Rule     string
}

// InstanceKey is the flag every mirror of this instance carries.
func (t Tags) InstanceKey() string {
	return t.Instance + "_synced"
}

// RuleKey is the flag every mirror created by this rule carries.
func (t Tags) RuleKey() string {
	return t.Instance + "_" + t.Rule
}

// InstanceFilter is the private extended-property filter matching all of this
// instance's mirrors.
func (t Tags) InstanceFilter() string {
	return t.InstanceKey() + "=true"
}

// RuleFilter is the private extended-property filter matching this rule's mirrors.
func (t Tags) RuleFilter() string {
	return t.RuleKey() + "=true"
}

// IsMirror reports whether props carry this instance's flag.
func (t Tags) IsMirror(props model.Provenance) bool {
	return props.Flag(t.InstanceKey())
}

// OwnedByRule reports whether props carry this rule's flag.
func (t Tags) OwnedByRule(props model.Provenance) bool {
	return props.Flag(t.RuleKey())
}

// Initial returns the map assigned to a source record that has no provenance yet.
func Initial(sourceCalendarID, sourceEventID string, now time.Time) model.Provenance {
	return model.Provenance{
		SourceCalendarID: sourceCalendarID,
		SourceEventID:    sourceEventID,
		LastSynced:       now.UTC().Format(time.RFC3339),
		SyncVersion:      Version,
	}
}

// Stamp returns the fields written on every create or update of a mirror.
func (t Tags) Stamp(sourceCalendarID, sourceEventID string, count int, now time.Time) model.Provenance {
	now = now.UTC()
	return model.Provenance{
		t.InstanceKey():  "true",
		t.RuleKey():      "true",
		SourceEventID:    sourceEventID,
		SourceCalendarID: sourceCalendarID,
		LastSynced:       now.Format(time.RFC3339),
		LastSyncHuman:    now.Format(HumanLayout),
		SyncCount:        strconv.Itoa(count),
	}
}

// Merge returns old overlaid with fresh. Keys only in old survive.
func Merge(old, fresh model.Provenance) model.Provenance {
	out := old.Clone()
	maps.Copy(out, fresh)
	if _, ok := out[SyncVersion]; !ok {
		out[SyncVersion] = Version
	}
	return out
}

// SourceIdentity returns the (event, calendar) pair a mirror points at.
func SourceIdentity(props model.Provenance) (eventID, calendarID string) {
	return props.Get(SourceEventID), props.Get(SourceCalendarID)
}
