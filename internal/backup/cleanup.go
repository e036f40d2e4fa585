package backup

import (
	"fmt"
	"time"
)

// CleanupOptions configures snapshot retention.
type CleanupOptions struct {
	// MaxBackups limits snapshots kept per calendar (0 = unlimited).
	MaxBackups int
	// MaxAge drops snapshots older than this (0 = unlimited).
	MaxAge time.Duration
	// KeepAtLeastOne keeps the newest snapshot of each calendar regardless.
	KeepAtLeastOne bool
	// Calendar limits cleanup to one calendar label.
	Calendar string
	// DryRun reports what would be deleted.
	DryRun bool
}

// DefaultCleanupOptions keeps ten snapshots per calendar for 90 days.
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     10,
		MaxAge:         90 * 24 * time.Hour,
		KeepAtLeastOne: true,
	}
}

// Cleanup removes snapshots outside the retention policy and returns the ids
// removed (or, in a dry run, that would be).
func (s *Store) Cleanup(opts CleanupOptions) ([]string, error) {
	idx, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]Metadata)
	for _, m := range idx.Backups {
		if opts.Calendar != "" && m.Calendar != opts.Calendar {
			continue
		}
		groups[m.Calendar] = append(groups[m.Calendar], m)
	}

	now := s.now()
	var toDelete []string
	for _, group := range groups {
		sortNewestFirst(group)
		var drop []string
		for i, m := range group {
			expired := opts.MaxAge > 0 && now.Sub(m.CreatedAt) > opts.MaxAge
			over := opts.MaxBackups > 0 && i >= opts.MaxBackups
			if expired || over {
				drop = append(drop, m.ID)
			}
		}
		if opts.KeepAtLeastOne && len(drop) == len(group) && len(drop) > 0 {
			drop = drop[1:]
		}
		toDelete = append(toDelete, drop...)
	}

	if opts.DryRun {
		return toDelete, nil
	}
	var deleted []string
	for _, id := range toDelete {
		if err := s.Delete(id); err != nil {
			return deleted, fmt.Errorf("delete backup %q: %w", id, err)
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}
