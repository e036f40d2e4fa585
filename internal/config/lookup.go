package config

import (
	"strings"
	"time"

	"github.com/klauern/calmirror/internal/provenance"
)

// SplitRef splits an "account.label" reference. The label may itself
// contain dots.
func SplitRef(ref string) (account, label string, ok bool) {
	account, label, ok = strings.Cut(ref, ".")
	if !ok || account == "" || label == "" {
		return "", "", false
	}
	return account, label, true
}

// Account returns the account with the given name, or nil.
func (c *Config) Account(name string) *Account {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i]
		}
	}
	return nil
}

// CalendarByLabel resolves an "account.label" reference to its account and
// calendar. Both are nil when the reference does not resolve.
func (c *Config) CalendarByLabel(ref string) (*Account, *Calendar) {
	accountName, label, ok := SplitRef(ref)
	if !ok {
		return nil, nil
	}
	acct := c.Account(accountName)
	if acct == nil {
		return nil, nil
	}
	for i := range acct.Calendars {
		if acct.Calendars[i].Label == label {
			return acct, &acct.Calendars[i]
		}
	}
	return nil, nil
}

// CalendarByID returns the first configured calendar with the given remote id.
func (c *Config) CalendarByID(id string) (*Account, *Calendar) {
	for i := range c.Accounts {
		for j := range c.Accounts[i].Calendars {
			if c.Accounts[i].Calendars[j].CalendarID == id {
				return &c.Accounts[i], &c.Accounts[i].Calendars[j]
			}
		}
	}
	return nil, nil
}

// Rule returns the sync rule with the given id, or nil.
func (c *Config) Rule(id string) *SyncRule {
	for i := range c.SyncRules {
		if c.SyncRules[i].ID == id {
			return &c.SyncRules[i]
		}
	}
	return nil
}

// EnabledRules returns rules with at least one enabled destination.
func (c *Config) EnabledRules() []SyncRule {
	var out []SyncRule
	for _, r := range c.SyncRules {
		if len(r.EnabledTargets()) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Identifier returns the instance identifier, defaulting to "calmirror".
func (c *Config) Identifier() string {
	if id := strings.TrimSpace(c.DefaultIdentifier); id != "" {
		return id
	}
	return DefaultIdentifier
}

// RuleTags returns the provenance tags for a rule id.
func (c *Config) RuleTags(ruleID string) provenance.Tags {
	return provenance.Tags{Instance: c.Identifier(), Rule: ruleID}
}

// InstanceTags returns tags for instance-wide operations with no rule.
func (c *Config) InstanceTags() provenance.Tags {
	return provenance.Tags{Instance: c.Identifier()}
}

// Window returns the configured fetch window as durations before and after now.
func (c *Config) Window() (past, future time.Duration) {
	const day = 24 * time.Hour
	return time.Duration(c.Sync.WindowPastDays) * day, time.Duration(c.Sync.WindowFutureDays) * day
}
