// Package purge removes mirrors created by this instance, either every
// mirror in every destination or only those belonging to named rules.
package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/sync"
)

// ErrNoRules is returned by PurgeRules when called without rule ids.
var ErrNoRules = errors.New("no rule ids given")

// CalendarResult is the outcome for one destination calendar.
type CalendarResult struct {
	Calendar   string   `json:"calendar" yaml:"calendar"`
	CalendarID string   `json:"calendar_id" yaml:"calendar_id"`
	Filter     string   `json:"filter" yaml:"filter"`
	Found      int      `json:"found" yaml:"found"`
	Deleted    int      `json:"deleted" yaml:"deleted"`
	Failed     int      `json:"failed" yaml:"failed"`
	Titles     []string `json:"titles,omitempty" yaml:"titles,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`

	// Removed holds the events that were (or, in a dry run, would be) deleted.
	Removed []*gcal.Event `json:"-" yaml:"-"`
}

// Result collects per-calendar outcomes.
type Result struct {
	DryRun    bool             `json:"dry_run" yaml:"dry_run"`
	Calendars []CalendarResult `json:"calendars" yaml:"calendars"`
}

// Totals sums every calendar.
func (r *Result) Totals() (found, deleted, failed int) {
	for _, c := range r.Calendars {
		found += c.Found
		deleted += c.Deleted
		failed += c.Failed
	}
	return found, deleted, failed
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	var sb strings.Builder
	if r.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}
	for _, c := range r.Calendars {
		if c.Error != "" {
			fmt.Fprintf(&sb, "  %s: skipped (%s)\n", c.Calendar, c.Error)
			continue
		}
		verb := "deleted"
		n := c.Deleted
		if r.DryRun {
			verb, n = "would delete", c.Found
		}
		fmt.Fprintf(&sb, "  %s: %s %d of %d", c.Calendar, verb, n, c.Found)
		if c.Failed > 0 {
			fmt.Fprintf(&sb, " (%d failed)", c.Failed)
		}
		sb.WriteString("\n")
	}
	found, deleted, failed := r.Totals()
	fmt.Fprintf(&sb, "Total: found %d, deleted %d, failed %d\n", found, deleted, failed)
	return sb.String()
}

// Option configures a Purger.
type Option func(*Purger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Purger) { p.logger = logger }
}

// SnapshotFunc receives the mirrors about to be deleted from one calendar.
// A returned error leaves that calendar untouched.
type SnapshotFunc func(ctx context.Context, cr *CalendarResult, events []*gcal.Event) error

// WithSnapshot registers a hook that runs before any delete.
func WithSnapshot(fn SnapshotFunc) Option {
	return func(p *Purger) { p.snapshot = fn }
}

// Purger deletes mirrors found by provenance search.
type Purger struct {
	cfg      *config.Config
	sessions sync.SessionProvider
	logger   *slog.Logger
	snapshot SnapshotFunc
}

// New creates a Purger.
func New(cfg *config.Config, sessions sync.SessionProvider, opts ...Option) *Purger {
	p := &Purger{cfg: cfg, sessions: sessions, logger: logging.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type job struct {
	ref    string
	filter string
}

// PurgeAll removes every mirror carrying the instance flag from every
// destination calendar of every enabled target.
func (p *Purger) PurgeAll(ctx context.Context, dryRun bool) (*Result, error) {
	filter := p.cfg.InstanceTags().InstanceFilter()
	var jobs []job
	seen := make(map[string]bool)
	for _, rule := range p.cfg.SyncRules {
		for _, target := range rule.EnabledTargets() {
			if seen[target.Calendar] {
				continue
			}
			seen[target.Calendar] = true
			jobs = append(jobs, job{ref: target.Calendar, filter: filter})
		}
	}
	return p.run(ctx, jobs, dryRun), nil
}

// PurgeRules removes the mirrors of the named rules only.
func (p *Purger) PurgeRules(ctx context.Context, ids []string, dryRun bool) (*Result, error) {
	if len(ids) == 0 {
		return nil, ErrNoRules
	}
	var jobs []job
	for _, id := range ids {
		rule := p.cfg.Rule(id)
		if rule == nil {
			return nil, fmt.Errorf("unknown sync rule %q", id)
		}
		filter := p.cfg.RuleTags(id).RuleFilter()
		for _, target := range rule.EnabledTargets() {
			jobs = append(jobs, job{ref: target.Calendar, filter: filter})
		}
	}
	return p.run(ctx, jobs, dryRun), nil
}

func (p *Purger) run(ctx context.Context, jobs []job, dryRun bool) *Result {
	defer logging.Timer(p.logger, "purge")()

	res := &Result{DryRun: dryRun}
	sessions := make(map[string]calendar.Session)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		res.Calendars = append(res.Calendars, p.purgeCalendar(ctx, sessions, j, dryRun))
	}
	return res
}

func (p *Purger) purgeCalendar(ctx context.Context, sessions map[string]calendar.Session, j job, dryRun bool) CalendarResult {
	cr := CalendarResult{Calendar: j.ref, Filter: j.filter}
	logger := p.logger.With(logging.Target(j.ref))

	acct, cal := p.cfg.CalendarByLabel(j.ref)
	if cal == nil {
		cr.Error = "calendar not configured"
		logger.Warn("skipping purge", slog.String("reason", cr.Error))
		return cr
	}
	cr.CalendarID = cal.CalendarID

	s, ok := sessions[acct.Name]
	if !ok {
		var err error
		s, err = p.sessions.Session(ctx, *acct)
		if err != nil {
			cr.Error = err.Error()
			logger.Warn("skipping purge", logging.Err(err))
			return cr
		}
		sessions[acct.Name] = s
	}

	events, err := sync.Search(ctx, s, cal.CalendarID, j.filter)
	if err != nil {
		cr.Error = err.Error()
		logger.Error("search failed", logging.Err(err))
		return cr
	}
	cr.Found = len(events)
	if !dryRun && p.snapshot != nil && len(events) > 0 {
		if err := p.snapshot(ctx, &cr, events); err != nil {
			cr.Error = fmt.Sprintf("snapshot failed: %v", err)
			logger.Error("snapshot failed, nothing deleted", logging.Err(err))
			return cr
		}
	}
	for _, ev := range events {
		cr.Titles = append(cr.Titles, ev.Summary)
		if dryRun {
			cr.Removed = append(cr.Removed, ev)
			continue
		}
		if err := s.DeleteEvent(ctx, cal.CalendarID, ev.Id); err != nil && !calendar.IsNotFound(err) {
			cr.Failed++
			logger.Error("delete failed", logging.Event(ev.Id), logging.Err(err))
			continue
		}
		cr.Deleted++
		cr.Removed = append(cr.Removed, ev)
	}
	logger.Info("purged calendar",
		slog.Int("found", cr.Found),
		slog.Int("deleted", cr.Deleted),
		slog.Int("failed", cr.Failed),
		slog.Bool("dry_run", dryRun),
	)
	return cr
}
