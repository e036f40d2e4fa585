package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/metrics"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/provenance"
)

var errNotConfigured = errors.New("calendar not configured")

// SessionProvider hands out an authenticated session per account.
type SessionProvider interface {
	Session(ctx context.Context, account config.Account) (calendar.Session, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to logging.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithMetrics records rule and event outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithRuleDone registers a callback invoked by SyncAll after each rule.
func WithRuleDone(fn func(*RuleResult)) Option {
	return func(r *Reconciler) { r.ruleDone = fn }
}

// Reconciler mirrors source calendars into their destinations.
type Reconciler struct {
	cfg      *config.Config
	sessions SessionProvider
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	ruleDone func(*RuleResult)
}

// NewReconciler creates a Reconciler for cfg.
func NewReconciler(cfg *config.Config, sessions SessionProvider, opts ...Option) *Reconciler {
	r := &Reconciler{
		cfg:      cfg,
		sessions: sessions,
		logger:   logging.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// runContext is the state threaded through one rule.
type runContext struct {
	rule     config.SyncRule
	tags     provenance.Tags
	dryRun   bool
	logger   *slog.Logger
	sessions map[string]calendar.Session

	source    *Snapshot
	sourceIDs map[string]struct{}
	live      []model.Record
	loops     []model.Record
	degraded  bool
}

func (r *Reconciler) session(ctx context.Context, rc *runContext, acct config.Account) (calendar.Session, error) {
	if s, ok := rc.sessions[acct.Name]; ok {
		return s, nil
	}
	s, err := r.sessions.Session(ctx, acct)
	if err != nil {
		return nil, newError(KindAuth, "open session", acct.Name, err)
	}
	rc.sessions[acct.Name] = s
	return s, nil
}

// SyncAll runs rules one at a time. When rules is empty every enabled rule
// runs. A failing rule is logged and the next one still runs.
func (r *Reconciler) SyncAll(ctx context.Context, rules []config.SyncRule, dryRun bool) *RunResult {
	if len(rules) == 0 {
		rules = r.cfg.EnabledRules()
	}
	run := &RunResult{DryRun: dryRun}
	for _, rule := range rules {
		if ctx.Err() != nil {
			r.logger.Warn("sync interrupted", logging.Err(ctx.Err()))
			break
		}
		result, err := r.SyncRule(ctx, rule, dryRun)
		if err != nil {
			r.logger.Error("rule failed", logging.Rule(rule.ID), logging.Err(err))
		}
		run.Rules = append(run.Rules, result)
		if r.ruleDone != nil {
			r.ruleDone(result)
		}
	}
	if !dryRun && run.Success() {
		r.metrics.MarkSuccess(r.now())
	}
	return run
}

// SyncRule reconciles one rule against all of its enabled destinations. The
// returned error is non-nil only when the whole rule could not run.
func (r *Reconciler) SyncRule(ctx context.Context, rule config.SyncRule, dryRun bool) (*RuleResult, error) {
	start := r.now()
	logger := r.logger.With(logging.Rule(rule.ID))
	defer logging.Timer(logger, "sync_rule")()

	result := &RuleResult{RuleID: rule.ID, Source: rule.SourceCalendar, DryRun: dryRun}
	rc := &runContext{
		rule:     rule,
		tags:     r.cfg.RuleTags(rule.ID),
		dryRun:   dryRun,
		logger:   logger,
		sessions: make(map[string]calendar.Session),
	}

	err := r.runRule(ctx, rc, result)
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = r.now().Sub(start)
	if !dryRun {
		r.metrics.RecordRule(rule.ID, result.Success(), result.Duration)
	}
	c := result.Counts()
	logger.Info("rule finished",
		slog.Int("synced", c.Synced),
		slog.Int("deleted", c.Deleted),
		slog.Int("skipped", c.Skipped),
		slog.Int("failed", c.Failed),
		slog.Bool("dry_run", dryRun),
	)
	return result, err
}

func (r *Reconciler) runRule(ctx context.Context, rc *runContext, result *RuleResult) error {
	srcAcct, srcCal := r.cfg.CalendarByLabel(rc.rule.SourceCalendar)
	if srcCal == nil {
		return newError(KindConfig, "resolve source", rc.rule.SourceCalendar, errNotConfigured)
	}
	srcSession, err := r.session(ctx, rc, *srcAcct)
	if err != nil {
		return err
	}

	past, future := r.cfg.Window()
	fetcher := &Fetcher{Past: past, Future: future, Now: r.now, Logger: rc.logger, Metrics: r.metrics}
	snap, err := fetcher.Fetch(ctx, srcSession, srcCal.CalendarID)
	if err != nil {
		if !IsDegraded(err) {
			return err
		}
		rc.degraded = true
		result.Degraded = true
		result.Warnings = append(result.Warnings, "source fetch degraded: "+err.Error())
	}
	if snap.CalendarName == "" {
		snap.CalendarName = srcCal.DisplayName()
	}
	rc.source = snap
	rc.sourceIDs = snap.IDs()

	for _, rec := range snap.Records {
		if rc.tags.IsMirror(rec.Provenance) {
			rc.loops = append(rc.loops, rec)
			continue
		}
		rc.live = append(rc.live, rec)
	}
	if len(rc.loops) > 0 {
		rc.logger.Info("ignoring events that are already mirrors", logging.Count(len(rc.loops)))
	}

	for _, target := range rc.rule.EnabledTargets() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result.Targets = append(result.Targets, r.syncTarget(ctx, rc, target, srcCal.CalendarID))
	}
	return nil
}

func (r *Reconciler) syncTarget(ctx context.Context, rc *runContext, target config.SyncTarget, sourceCalendarID string) TargetResult {
	tr := TargetResult{Calendar: target.Calendar}
	logger := rc.logger.With(logging.Target(target.Calendar))

	destAcct, destCal := r.cfg.CalendarByLabel(target.Calendar)
	if destCal == nil {
		err := newError(KindConfig, "resolve destination", target.Calendar, errNotConfigured)
		logger.Warn("skipping target", logging.Err(err))
		tr.Error = err.Error()
		return tr
	}
	tr.CalendarID = destCal.CalendarID
	dest, err := r.session(ctx, rc, *destAcct)
	if err != nil {
		logger.Warn("skipping target", logging.Err(err))
		tr.Error = err.Error()
		return tr
	}

	mode, warning := ConfiguredMode(target)
	if warning != "" {
		logger.Warn("unrecognized privacy mode", slog.String("privacy_mode", target.PrivacyMode))
		tr.warn("%s", warning)
	}
	tr.Mode = mode

	mirrors, mirrorsErr := FindAllMirrors(ctx, dest, destCal.CalendarID, rc.tags, sourceCalendarID)
	if mirrorsErr != nil {
		logger.Warn("cannot list existing mirrors", logging.Err(mirrorsErr))
	}
	bySource := indexMirrors(mirrors)

	for _, rec := range rc.loops {
		tr.Events = append(tr.Events, EventResult{
			SourceEventID: rec.ID,
			Title:         rec.Title,
			Action:        ActionSkipped,
			Message:       "event is a mirror",
		})
		if !rc.dryRun {
			r.metrics.RecordEvent(rc.rule.ID, string(ActionSkipped))
		}
	}

	for _, rec := range rc.live {
		er := r.applyEvent(ctx, rc, dest, destCal.CalendarID, target, mode, rec, bySource, logger)
		tr.Events = append(tr.Events, er)
		if !rc.dryRun {
			r.metrics.RecordEvent(rc.rule.ID, string(er.Action))
		}
	}

	switch {
	case rc.degraded:
		logger.Warn("source fetch degraded, skipping deletion pass")
		tr.warn("deletion pass skipped: source fetch degraded")
	case mirrorsErr != nil:
		tr.warn("deletion pass skipped: %v", mirrorsErr)
	default:
		for _, ev := range mirrors {
			er, ok := r.deleteOrphan(ctx, rc, dest, destCal.CalendarID, ev, logger)
			if !ok {
				continue
			}
			tr.Events = append(tr.Events, er)
			if !rc.dryRun {
				r.metrics.RecordEvent(rc.rule.ID, string(er.Action))
			}
		}
	}
	return tr
}

func (r *Reconciler) applyEvent(ctx context.Context, rc *runContext, dest calendar.Session, destCalendarID string,
	target config.SyncTarget, configured model.PrivacyMode, rec model.Record, bySource map[string]*gcal.Event, logger *slog.Logger,
) EventResult {
	er := EventResult{SourceEventID: rec.ID, Title: rec.Title}
	logger = logger.With(logging.Event(rec.ID))

	mode, overridden := EffectiveMode(rec.Visibility, configured)
	if overridden {
		logger.Info("source visibility overrides privacy mode",
			slog.String("visibility", rec.Visibility),
			slog.String("privacy_mode", mode.String()),
		)
	}

	existing, err := FindMirror(ctx, dest, destCalendarID, rec, rc.tags)
	if err != nil {
		err = newError(KindAPI, "lookup", rec.ID, err)
		logger.Error("mirror lookup failed", logging.Err(err))
		er.Action, er.Error = ActionFailed, err.Error()
		return er
	}
	if existing == nil {
		// The source may have moved outside the lookup window.
		existing = bySource[rec.SourceEventID]
	}

	opts := EncodeOptions{
		Mode:               mode,
		SourceCalendarName: rc.source.CalendarName,
		SyncCount:          1,
		Now:                r.now(),
	}
	if existing != nil {
		old := calendar.PrivateProperties(existing)
		opts.Base = old
		opts.SyncCount = old.Int(provenance.SyncCount) + 1
	}
	payload := Encode(rec, target, rc.tags, opts)
	er.Title = payload.Summary

	if existing == nil {
		er.Action = ActionCreated
		if rc.dryRun {
			return er
		}
		created, err := dest.InsertEvent(ctx, destCalendarID, payload)
		if err != nil {
			return failed(er, newError(KindApply, "insert", rec.ID, err), logger)
		}
		er.MirrorID = created.Id
		logger.Debug("created mirror", slog.String("mirror_id", created.Id))
		return er
	}

	er.Action = ActionUpdated
	er.MirrorID = existing.Id
	if rc.dryRun {
		return er
	}
	if _, err := dest.UpdateEvent(ctx, destCalendarID, existing.Id, payload); err != nil {
		return failed(er, newError(KindApply, "update", existing.Id, err), logger)
	}
	logger.Debug("updated mirror", slog.String("mirror_id", existing.Id), slog.Int("sync_count", opts.SyncCount))
	return er
}

// deleteOrphan removes ev when its source is gone. ok is false when ev's
// source still exists.
func (r *Reconciler) deleteOrphan(ctx context.Context, rc *runContext, dest calendar.Session, destCalendarID string,
	ev *gcal.Event, logger *slog.Logger,
) (EventResult, bool) {
	sourceID, _ := provenance.SourceIdentity(calendar.PrivateProperties(ev))
	if sourceID == "" {
		return EventResult{}, false
	}
	if _, ok := rc.sourceIDs[sourceID]; ok {
		return EventResult{}, false
	}
	er := EventResult{SourceEventID: sourceID, MirrorID: ev.Id, Title: ev.Summary, Action: ActionDeleted}
	if rc.dryRun {
		return er, true
	}
	if err := dest.DeleteEvent(ctx, destCalendarID, ev.Id); err != nil {
		if calendar.IsNotFound(err) {
			er.Message = "already removed"
			return er, true
		}
		return failed(er, newError(KindApply, "delete", ev.Id, err), logger), true
	}
	logger.Debug("deleted orphaned mirror", slog.String("mirror_id", ev.Id), logging.Event(sourceID))
	return er, true
}

// indexMirrors maps each mirror's source event id to the mirror. The first
// mirror listed wins when a source has several.
func indexMirrors(mirrors []*gcal.Event) map[string]*gcal.Event {
	idx := make(map[string]*gcal.Event, len(mirrors))
	for _, ev := range mirrors {
		id, _ := provenance.SourceIdentity(calendar.PrivateProperties(ev))
		if _, seen := idx[id]; id != "" && !seen {
			idx[id] = ev
		}
	}
	return idx
}

func failed(er EventResult, err error, logger *slog.Logger) EventResult {
	logger.Error("apply failed", logging.Err(err))
	er.Action = ActionFailed
	er.Error = err.Error()
	return er
}
