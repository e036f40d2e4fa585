package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauern/calmirror/internal/model"
)

// Action represents what happened to one event during a sync.
type Action string

const (
	// ActionCreated indicates a new mirror was inserted.
	ActionCreated Action = "created"

	// ActionUpdated indicates an existing mirror was refreshed.
	ActionUpdated Action = "updated"

	// ActionDeleted indicates an orphaned mirror was removed.
	ActionDeleted Action = "deleted"

	// ActionSkipped indicates a source event was itself a mirror.
	ActionSkipped Action = "skipped"

	// ActionFailed indicates the remote call for the event failed.
	ActionFailed Action = "failed"
)

// EventResult is the outcome for a single event.
type EventResult struct {
	SourceEventID string `json:"source_event_id,omitempty" yaml:"source_event_id,omitempty"`
	MirrorID      string `json:"mirror_id,omitempty" yaml:"mirror_id,omitempty"`
	Title         string `json:"title" yaml:"title"`
	Action        Action `json:"action" yaml:"action"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success returns true unless the event failed.
func (er *EventResult) Success() bool {
	return er.Action != ActionFailed
}

// Counts aggregates event outcomes.
type Counts struct {
	Synced  int `json:"synced" yaml:"synced"`
	Deleted int `json:"deleted" yaml:"deleted"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`
}

func (c *Counts) add(o Counts) {
	c.Synced += o.Synced
	c.Deleted += o.Deleted
	c.Skipped += o.Skipped
	c.Failed += o.Failed
}

func (c *Counts) record(a Action) {
	switch a {
	case ActionCreated, ActionUpdated:
		c.Synced++
	case ActionDeleted:
		c.Deleted++
	case ActionSkipped:
		c.Skipped++
	case ActionFailed:
		c.Failed++
	}
}

// TargetResult collects the outcome for one destination of a rule.
type TargetResult struct {
	Calendar   string            `json:"calendar" yaml:"calendar"`
	CalendarID string            `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`
	Mode       model.PrivacyMode `json:"privacy_mode,omitempty" yaml:"privacy_mode,omitempty"`
	Events     []EventResult     `json:"events,omitempty" yaml:"events,omitempty"`
	Warnings   []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	// Error is set when the whole target was skipped.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Counts tallies the target's events.
func (tr *TargetResult) Counts() Counts {
	var c Counts
	for _, er := range tr.Events {
		c.record(er.Action)
	}
	return c
}

// Filter returns the events with the given action.
func (tr *TargetResult) Filter(action Action) []EventResult {
	var out []EventResult
	for _, er := range tr.Events {
		if er.Action == action {
			out = append(out, er)
		}
	}
	return out
}

func (tr *TargetResult) warn(format string, args ...any) {
	tr.Warnings = append(tr.Warnings, fmt.Sprintf(format, args...))
}

// RuleResult collects the outcome of one rule across its targets.
type RuleResult struct {
	RuleID   string         `json:"rule" yaml:"rule"`
	Source   string         `json:"source" yaml:"source"`
	DryRun   bool           `json:"dry_run" yaml:"dry_run"`
	Degraded bool           `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Targets  []TargetResult `json:"targets,omitempty" yaml:"targets,omitempty"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
}

// Counts tallies every target of the rule.
func (rr *RuleResult) Counts() Counts {
	var c Counts
	for i := range rr.Targets {
		c.add(rr.Targets[i].Counts())
	}
	return c
}

// Success returns true if the rule ran and no event or target failed.
func (rr *RuleResult) Success() bool {
	if rr.Error != "" {
		return false
	}
	for i := range rr.Targets {
		if rr.Targets[i].Error != "" || rr.Targets[i].Counts().Failed > 0 {
			return false
		}
	}
	return true
}

// AllWarnings returns rule and target warnings, target ones prefixed with
// the target calendar.
func (rr *RuleResult) AllWarnings() []string {
	out := append([]string(nil), rr.Warnings...)
	for _, tr := range rr.Targets {
		for _, w := range tr.Warnings {
			out = append(out, tr.Calendar+": "+w)
		}
	}
	return out
}

// PlanItem is one intended action of a dry run.
type PlanItem struct {
	Rule   string `json:"rule" yaml:"rule"`
	Target string `json:"target" yaml:"target"`
	Action Action `json:"action" yaml:"action"`
	Title  string `json:"title" yaml:"title"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Plan lists every mutating action of the rule. Skipped events are omitted.
func (rr *RuleResult) Plan() []PlanItem {
	var items []PlanItem
	for _, tr := range rr.Targets {
		for _, er := range tr.Events {
			if er.Action == ActionSkipped {
				continue
			}
			detail := er.Message
			if er.Error != "" {
				detail = er.Error
			}
			items = append(items, PlanItem{
				Rule:   rr.RuleID,
				Target: tr.Calendar,
				Action: er.Action,
				Title:  er.Title,
				Detail: detail,
			})
		}
	}
	return items
}

// RunResult is the outcome of SyncAll.
type RunResult struct {
	DryRun bool          `json:"dry_run" yaml:"dry_run"`
	Rules  []*RuleResult `json:"rules" yaml:"rules"`
}

// Counts tallies every rule.
func (r *RunResult) Counts() Counts {
	var c Counts
	for _, rr := range r.Rules {
		c.add(rr.Counts())
	}
	return c
}

// Success returns true if every rule succeeded.
func (r *RunResult) Success() bool {
	for _, rr := range r.Rules {
		if !rr.Success() {
			return false
		}
	}
	return true
}

// Failed returns the rules that did not fully succeed.
func (r *RunResult) Failed() []*RuleResult {
	var out []*RuleResult
	for _, rr := range r.Rules {
		if !rr.Success() {
			out = append(out, rr)
		}
	}
	return out
}

// Plan concatenates the plans of every rule.
func (r *RunResult) Plan() []PlanItem {
	var items []PlanItem
	for _, rr := range r.Rules {
		items = append(items, rr.Plan()...)
	}
	return items
}

// Summary returns a human-readable summary of one rule.
func (rr *RuleResult) Summary() string {
	var sb strings.Builder

	if rr.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}

	fmt.Fprintf(&sb, "Rule %s (from %s)\n", rr.RuleID, rr.Source)
	if rr.Error != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", rr.Error)
		return sb.String()
	}

	for _, tr := range rr.Targets {
		if tr.Error != "" {
			fmt.Fprintf(&sb, "  -> %s: skipped (%s)\n", tr.Calendar, tr.Error)
			continue
		}
		c := tr.Counts()
		fmt.Fprintf(&sb, "  -> %s [%s]: synced %d, deleted %d, skipped %d, failed %d\n",
			tr.Calendar, tr.Mode, c.Synced, c.Deleted, c.Skipped, c.Failed)
		for _, er := range tr.Filter(ActionFailed) {
			fmt.Fprintf(&sb, "     ! %s: %s\n", er.Title, er.Error)
		}
	}

	if ws := rr.AllWarnings(); len(ws) > 0 {
		sb.WriteString("  Warnings:\n")
		for _, w := range ws {
			fmt.Fprintf(&sb, "    - %s\n", w)
		}
	}

	return sb.String()
}

// Summary returns a human-readable summary of the whole run.
func (r *RunResult) Summary() string {
	var sb strings.Builder
	for _, rr := range r.Rules {
		sb.WriteString(rr.Summary())
	}
	c := r.Counts()
	fmt.Fprintf(&sb, "Total: synced %d, deleted %d, skipped %d, failed %d\n",
		c.Synced, c.Deleted, c.Skipped, c.Failed)
	return sb.String()
}
