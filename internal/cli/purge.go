package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/klauern/calmirror/internal/backup"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/export"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/purge"
	"github.com/klauern/calmirror/internal/sync"
	"github.com/klauern/calmirror/internal/ui"
	"github.com/klauern/calmirror/internal/ui/tui"
)

func (a *App) purgeCommand() *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Delete mirrors created by this instance",
		ArgsUsage: "[rule-id...]",
		Description: `Deletes mirrors of the named rules, or with --all every mirror this
   instance created in any destination calendar. Events without this
   instance's provenance are never touched.

   Before deleting, the mirrors of each calendar are saved as an ICS
   snapshot (see 'calmirror backups').

   Examples:
     calmirror purge --dry-run --all
     calmirror purge work_to_personal
     calmirror purge --interactive`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Purge every mirror of this instance",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "List what would be deleted",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Pick the rules to purge in a terminal UI",
			},
			&cli.BoolFlag{
				Name:  "no-backup",
				Usage: "Skip the ICS snapshot taken before deleting",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, yaml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			all := cmd.Bool("all")
			interactive := cmd.Bool("interactive")
			switch {
			case all && len(ids) > 0:
				return errors.New("use either --all or rule ids, not both")
			case interactive && (all || len(ids) > 0):
				return errors.New("--interactive picks the rules itself; drop --all and rule ids")
			case !all && !interactive && len(ids) == 0:
				return errors.New("purge needs rule ids, --all or --interactive")
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if interactive {
				if ids, err = a.pickRules(cfg); err != nil || len(ids) == 0 {
					return err
				}
			}
			format, err := a.format(cmd, cfg)
			if err != nil {
				return err
			}

			opts := []purge.Option{purge.WithLogger(a.logger)}
			if !cmd.Bool("no-backup") {
				opts = append(opts, purge.WithSnapshot(a.snapshot(backup.NewStore(a.BackupDir))))
			}
			p := purge.New(cfg, a.sessions(), opts...)

			dryRun := cmd.Bool("dry-run")
			var res *purge.Result
			if all {
				res, err = p.PurgeAll(ctx, dryRun)
			} else {
				res, err = p.PurgeRules(ctx, ids, dryRun)
			}
			if err != nil {
				return err
			}
			if err := export.WritePurge(a.Stdout, res, format); err != nil {
				return err
			}
			if _, _, failed := res.Totals(); failed > 0 {
				return fmt.Errorf("purge finished with %d failed deletion(s)", failed)
			}
			return nil
		},
	}
}

// pickRules asks which rules to purge. No ids and no error means the user
// backed out.
func (a *App) pickRules(cfg *config.Config) ([]string, error) {
	if !isTerminal(a.Stdout) {
		return nil, errors.New("--interactive requires a terminal")
	}
	choice, err := tui.RunRulePicker(cfg.SyncRules)
	if err != nil {
		return nil, fmt.Errorf("rule picker: %w", err)
	}
	if !choice.Confirmed {
		fmt.Fprintln(a.Stdout, "Nothing purged")
		return nil, nil
	}
	return choice.RuleIDs, nil
}

// snapshot saves the mirrors about to be purged from one calendar as ICS.
func (a *App) snapshot(store *backup.Store) purge.SnapshotFunc {
	return func(_ context.Context, cr *purge.CalendarResult, events []*gcal.Event) error {
		records := decodeMirrors(events, a.logger)
		var buf bytes.Buffer
		if err := export.WriteICS(&buf, cr.Calendar+" (purged)", records, a.Now()); err != nil {
			return err
		}
		meta, err := store.Save(buf.Bytes(), backup.Options{
			Calendar:    cr.Calendar,
			CalendarID:  cr.CalendarID,
			Filter:      cr.Filter,
			Events:      len(records),
			Description: "before purge",
		})
		if err != nil {
			return err
		}
		a.logger.Info("purge snapshot saved", logging.Target(cr.Calendar), slog.String("backup", meta.ID), logging.Count(len(records)))
		fmt.Fprintln(a.Stderr, ui.Dim(fmt.Sprintf("snapshot %s: %d event(s) from %s", meta.ID, len(records), cr.Calendar)))

		retention := backup.DefaultCleanupOptions()
		retention.Calendar = cr.Calendar
		if removed, err := store.Cleanup(retention); err != nil {
			a.logger.Warn("snapshot cleanup failed", logging.Target(cr.Calendar), logging.Err(err))
		} else if len(removed) > 0 {
			a.logger.Info("old snapshots removed", logging.Target(cr.Calendar), logging.Count(len(removed)))
		}
		return nil
	}
}

// decodeMirrors decodes destination events, skipping malformed ones.
func decodeMirrors(events []*gcal.Event, logger *slog.Logger) []model.Record {
	records := make([]model.Record, 0, len(events))
	for _, ev := range events {
		rec, err := sync.DecodeDestination(ev)
		if err != nil {
			logger.Warn("skipping undecodable mirror", logging.Event(ev.Id), logging.Err(err))
			continue
		}
		records = append(records, rec)
	}
	return records
}
