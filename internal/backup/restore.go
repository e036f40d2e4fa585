package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/calendar/ics"
	"github.com/klauern/calmirror/internal/logging"
)

// ErrMirrorsPresent is returned by Restore when the calendar already holds
// events matching the snapshot's filter.
var ErrMirrorsPresent = errors.New("calendar already has matching mirrors")

// restoreSpan bounds the snapshot read; snapshots hold single instances so
// no recurrence is expanded across it.
const restoreSpan = 20 * 365 * 24 * time.Hour

// RestoreOptions controls Restore.
type RestoreOptions struct {
	// Force restores even when matching mirrors already exist.
	Force  bool
	DryRun bool
	Logger *slog.Logger
}

// RestoreResult reports what Restore did.
type RestoreResult struct {
	BackupID string   `json:"backup_id" yaml:"backup_id"`
	Calendar string   `json:"calendar" yaml:"calendar"`
	Restored int      `json:"restored" yaml:"restored"`
	Failed   int      `json:"failed" yaml:"failed"`
	Titles   []string `json:"titles,omitempty" yaml:"titles,omitempty"`
}

// Restore re-inserts the events of snapshot id into calendarID through s.
// The snapshot is verified first. Provenance travels with each event, so
// the next sync adopts restored mirrors instead of duplicating them.
func (s *Store) Restore(ctx context.Context, dest calendar.Session, calendarID, id string, opts RestoreOptions) (*RestoreResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	meta, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(id); err != nil {
		return nil, err
	}

	if meta.Filter != "" && !opts.Force {
		page, err := dest.ListEvents(ctx, calendarID, calendar.ListOptions{
			MaxResults:        1,
			SingleEvents:      true,
			PrivateProperties: []string{meta.Filter},
		})
		if err != nil {
			return nil, fmt.Errorf("check %s for mirrors: %w", meta.Calendar, err)
		}
		if len(page.Events) > 0 {
			return nil, fmt.Errorf("%w in %s (filter %s)", ErrMirrorsPresent, meta.Calendar, meta.Filter)
		}
	}

	path, err := filepath.Abs(meta.Path)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reader := ics.New(ics.WithLogger(logger))
	page, err := reader.ListEvents(ctx, path, calendar.ListOptions{
		TimeMin:      now.Add(-restoreSpan),
		TimeMax:      now.Add(restoreSpan),
		SingleEvents: true,
	})
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", id, err)
	}

	res := &RestoreResult{BackupID: id, Calendar: meta.Calendar}
	for _, ev := range page.Events {
		res.Titles = append(res.Titles, ev.Summary)
		if opts.DryRun {
			res.Restored++
			continue
		}
		if _, err := dest.InsertEvent(ctx, calendarID, forInsert(ev)); err != nil {
			res.Failed++
			logger.Error("restore insert failed", logging.Event(ev.Id), logging.Err(err))
			continue
		}
		res.Restored++
	}
	logger.Info("backup restored",
		slog.String("backup", id),
		logging.Target(meta.Calendar),
		slog.Int("restored", res.Restored),
		slog.Int("failed", res.Failed),
		slog.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}

// forInsert strips the identifiers the snapshot assigned so the
// destination allocates fresh ones.
func forInsert(ev *gcal.Event) *gcal.Event {
	out := *ev
	out.Id = ""
	out.ICalUID = ""
	out.Sequence = 0
	if out.Status == "" {
		out.Status = "confirmed"
	}
	return &out
}
