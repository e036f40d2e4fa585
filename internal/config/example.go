package config

// ExampleConfig returns the annotated starter configuration written by
// `calmirror config init`.
func ExampleConfig() string {
	return `# calmirror configuration

# Calendar accounts. Each account authenticates once; calendars are addressed
# in sync rules as "<account>.<label>".
accounts:
  - name: "work"
    email: "work@company.com"
    auth_type: "oauth2"
    calendars:
      - label: "primary"
        calendar_id: "work@company.com"
        name: "Work Calendar"
        description: "Primary work calendar"
      - label: "team"
        calendar_id: "team@company.com"
        name: "Team Calendar"

  - name: "personal"
    email: "personal@gmail.com"
    auth_type: "oauth2"
    calendars:
      - label: "primary"
        calendar_id: "personal@gmail.com"
        name: "Personal Calendar"
      - label: "family"
        calendar_id: "family@gmail.com"
        name: "Family Calendar"

  # Read-only ICS subscriptions can be used as sources.
  - name: "holidays"
    auth_type: "ics"
    calendars:
      - label: "us"
        calendar_id: "https://calendar.example.com/us-holidays.ics"
        name: "US Holidays"

# Each rule mirrors one source calendar into one or more destinations.
sync_rules:
  - id: "work_to_personal"
    source_calendar: "work.primary"
    destination:
      - calendar: "personal.primary"
        privacy_mode: "private"
        privacy_label: "Busy"
        show_time: true
        event_color: "8"
      - calendar: "personal.family"
        privacy_mode: "public"
        title_prefix: "[Work]"
        enabled: false

# Prefix for provenance flags. Changing it orphans existing mirrors.
default_identifier: "calmirror"

log_level: "info"

sync:
  window_past_days: 30
  window_future_days: 30

# Used by "calmirror serve".
schedule: "*/15 * * * *"
metrics:
  listen: ":9464"
`
}
