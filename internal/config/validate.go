package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/model"
)

// FieldError describes one invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors aggregates every problem Validate found.
type Errors []*FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("%d configuration error(s):\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// Unwrap exposes the individual field errors to errors.As.
func (e Errors) Unwrap() []error {
	out := make([]error, len(e))
	for i, fe := range e {
		out[i] = fe
	}
	return out
}

type validator struct {
	errs Errors
}

func (v *validator) addf(field, format string, args ...any) {
	v.errs = append(v.errs, &FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks structural and referential integrity. It returns nil or
// an Errors value.
func (c *Config) Validate() error {
	v := &validator{}

	id := c.Identifier()
	if strings.ContainsAny(id, "= ") {
		v.addf("default_identifier", "must not contain spaces or '=' (got %q)", id)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		v.addf("log_level", "%v", err)
	}
	if c.Sync.WindowPastDays < 0 || c.Sync.WindowFutureDays < 0 {
		v.addf("sync", "window days must not be negative")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			v.addf("schedule", "invalid cron expression %q: %v", c.Schedule, err)
		}
	}

	c.validateAccounts(v)
	c.validateRules(v)

	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

func (c *Config) validateAccounts(v *validator) {
	seen := make(map[string]bool)
	for i, acct := range c.Accounts {
		field := fmt.Sprintf("accounts[%d]", i)
		if acct.Name == "" {
			v.addf(field+".name", "account must have a name")
		} else if seen[acct.Name] {
			v.addf(field+".name", "duplicate account name %q", acct.Name)
		}
		seen[acct.Name] = true

		switch strings.ToLower(acct.AuthType) {
		case "", AuthOAuth2:
			if acct.Email == "" {
				v.addf(field+".email", "account %q must have an email", acct.Name)
			}
		case AuthICS:
		default:
			v.addf(field+".auth_type", "unknown auth type %q (valid: oauth2, ics)", acct.AuthType)
		}

		labels := make(map[string]bool)
		for j, cal := range acct.Calendars {
			cfield := fmt.Sprintf("%s.calendars[%d]", field, j)
			if cal.CalendarID == "" {
				v.addf(cfield+".calendar_id", "calendar %q in account %q must have a calendar ID", cal.DisplayName(), acct.Name)
			}
			if cal.Label == "" {
				v.addf(cfield+".label", "calendar in account %q must have a label", acct.Name)
			} else if labels[cal.Label] {
				v.addf(cfield+".label", "duplicate label %q in account %q", cal.Label, acct.Name)
			}
			labels[cal.Label] = true
		}
	}
}

func (c *Config) validateRules(v *validator) {
	seen := make(map[string]bool)
	for i, rule := range c.SyncRules {
		field := fmt.Sprintf("sync_rules[%d]", i)
		if rule.ID == "" {
			v.addf(field+".id", "sync rule must have an id")
		} else if seen[rule.ID] {
			v.addf(field+".id", "duplicate sync rule id %q", rule.ID)
		}
		seen[rule.ID] = true

		if acct, _ := c.CalendarByLabel(rule.SourceCalendar); acct == nil {
			v.addf(field+".source_calendar", "sync rule references unknown source calendar label: %s", rule.SourceCalendar)
		}

		for j, target := range rule.Destination {
			tfield := fmt.Sprintf("%s.destination[%d]", field, j)
			acct, _ := c.CalendarByLabel(target.Calendar)
			if acct == nil {
				v.addf(tfield+".calendar", "sync rule %q references unknown destination calendar label: %s", rule.ID, target.Calendar)
			} else if acct.IsICS() {
				v.addf(tfield+".calendar", "sync rule %q cannot write to ICS calendar %s", rule.ID, target.Calendar)
			}
			if target.Calendar == rule.SourceCalendar {
				v.addf(tfield+".calendar", "sync rule %q cannot sync calendar to itself: %s", rule.ID, rule.SourceCalendar)
			}
		}
	}
}

// Warnings returns non-fatal problems: unknown privacy modes fall back to
// public and rules without enabled destinations never run.
func (c *Config) Warnings() []string {
	var out []string
	for _, rule := range c.SyncRules {
		for _, target := range rule.Destination {
			if _, err := model.ParsePrivacyMode(target.PrivacyMode); err != nil {
				out = append(out, fmt.Sprintf("sync rule %q destination %s: %v; public will be used", rule.ID, target.Calendar, err))
			}
		}
		if len(rule.EnabledTargets()) == 0 {
			out = append(out, fmt.Sprintf("sync rule %q has no enabled destinations", rule.ID))
		}
	}
	return out
}
