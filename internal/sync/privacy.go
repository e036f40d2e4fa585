package sync

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/model"
)

// unknownCalendarName is used in the footer when the source has no name.
const unknownCalendarName = "Unknown"

// EffectiveMode applies the source event's visibility over the configured
// mode. Only "public" and "private" override; anything else keeps the
// configured mode.
func EffectiveMode(visibility string, configured model.PrivacyMode) (model.PrivacyMode, bool) {
	switch strings.ToLower(visibility) {
	case "public":
		return model.PrivacyPublic, configured != model.PrivacyPublic
	case "private":
		return model.PrivacyPrivate, configured != model.PrivacyPrivate
	default:
		return configured, false
	}
}

// ConfiguredMode parses the target's privacy mode. Unknown values fall back
// to public and return a warning.
func ConfiguredMode(target config.SyncTarget) (model.PrivacyMode, string) {
	mode, err := model.ParsePrivacyMode(target.PrivacyMode)
	if err != nil {
		return model.PrivacyPublic, err.Error() + "; defaulting to public"
	}
	return mode, ""
}

// InstanceTitle renders an identifier for people: underscores become spaces
// and words are title-cased.
func InstanceTitle(identifier string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(identifier, "_", " "))
}

// Footer is appended to every mirror's description.
func Footer(identifier, sourceCalendarName string) string {
	if sourceCalendarName == "" {
		sourceCalendarName = unknownCalendarName
	}
	return "\n\n---\nEvent added by " + InstanceTitle(identifier) + " from " + sourceCalendarName + " calendar."
}

func decorateTitle(prefix, title, suffix string) string {
	if prefix != "" {
		title = prefix + " " + title
	}
	if suffix != "" {
		title = title + " " + suffix
	}
	return title
}

// privateTitle is the label, plus the start time for timed events when
// show_time is set.
func privateTitle(target config.SyncTarget, start model.EventTime) string {
	label := target.PrivacyLabel
	if label == "" {
		label = model.DefaultPrivacyLabel
	}
	if target.ShowTime && !start.AllDay && !start.IsZero() {
		return label + " - " + start.Time.Format("15:04")
	}
	return label
}
