package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/calmirror/internal/archive"
	"github.com/klauern/calmirror/internal/backup"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/ui"
	"github.com/klauern/calmirror/internal/ui/tui"
	"github.com/klauern/calmirror/internal/util"
)

func (a *App) backupRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Re-insert a snapshot's events into its calendar",
		ArgsUsage: "<backup-id>",
		Description: `Inserts every event of the snapshot into the calendar it was taken
   from, or into --calendar. Provenance is kept, so the next sync treats
   restored events as its own mirrors.

   Restoring is refused while the calendar still holds matching mirrors;
   use --force to insert anyway.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calendar", Usage: "Restore into this calendar label instead"},
			&cli.BoolFlag{Name: "force", Usage: "Restore even if matching mirrors exist"},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Count the events without inserting"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := oneArg(cmd, "backup id")
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.restore(ctx, cfg.CalendarByLabel, id, cmd.String("calendar"), backup.RestoreOptions{
				Force:  cmd.Bool("force"),
				DryRun: cmd.Bool("dry-run"),
			})
		},
	}
}

// restore resolves the destination of snapshot id and restores into it.
func (a *App) restore(ctx context.Context, lookup calendarLookup, id, label string, opts backup.RestoreOptions) error {
	store := a.backupStore()
	meta, err := store.Get(id)
	if err != nil {
		return err
	}
	if label == "" {
		label = meta.Calendar
	}
	acct, cal := lookup(label)
	if acct == nil || cal == nil {
		return fmt.Errorf("calendar %q is not configured (use --calendar)", label)
	}
	session, err := a.sessions().Session(ctx, *acct)
	if err != nil {
		return err
	}

	opts.Logger = a.logger
	res, err := store.Restore(ctx, session, cal.CalendarID, id, opts)
	if err != nil {
		if errors.Is(err, backup.ErrMirrorsPresent) {
			return fmt.Errorf("%w; purge them first or use --force", err)
		}
		return err
	}
	res.Calendar = label

	verb := "Restored"
	if opts.DryRun {
		verb = "Would restore"
	}
	for _, title := range res.Titles {
		fmt.Fprintf(a.Stdout, "  %s\n", title)
	}
	fmt.Fprintf(a.Stdout, "%s %d event(s) from %s into %s\n", verb, res.Restored, id, label)
	if res.Failed > 0 {
		fmt.Fprintln(a.Stdout, ui.StatusError(fmt.Sprintf("%d event(s) failed", res.Failed)))
		return fmt.Errorf("restore finished with %d failed insert(s)", res.Failed)
	}
	return nil
}

func (a *App) backupArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Bundle snapshots into a tar.gz",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "Archive file to write"},
			&cli.StringFlag{Name: "calendar", Usage: "Only snapshots of this calendar label"},
			&cli.DurationFlag{Name: "max-age", Usage: "Only snapshots younger than this (0 = all)"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			opts := archive.CreateOptions{Calendar: cmd.String("calendar")}
			if age := cmd.Duration("max-age"); age > 0 {
				opts.Since = a.Now().Add(-age)
			}
			out := util.ExpandPath(cmd.String("output"))
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, backup.FilePerm)
			if err != nil {
				return err
			}
			manifest, err := archive.Create(f, a.backupStore(), opts, a.Now())
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			a.logger.Info("backups archived", slog.String("path", out), logging.Count(manifest.Count))
			fmt.Fprintln(a.Stdout, ui.StatusSuccess(fmt.Sprintf("Archived %d backup(s) to %s", manifest.Count, out)))
			return nil
		},
	}
}

func (a *App) backupImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Add the snapshots of an archive to the local store",
		ArgsUsage: "<archive>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			path, err := oneArg(cmd, "archive file")
			if err != nil {
				return err
			}
			f, err := os.Open(util.ExpandPath(path))
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := archive.Import(f, a.backupStore())
			if res != nil {
				for _, id := range res.Imported {
					fmt.Fprintf(a.Stdout, "  %s\n", id)
				}
				for _, id := range res.Skipped {
					fmt.Fprintf(a.Stdout, "  %s %s\n", id, ui.Dim("(already present)"))
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "Imported %d backup(s), skipped %d\n", len(res.Imported), len(res.Skipped))
			return nil
		},
	}
}

func (a *App) backupBrowseCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Pick a snapshot interactively to verify, delete or restore",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calendar", Usage: "Only snapshots of this calendar label"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !isTerminal(a.Stdout) {
				return errors.New("browse requires a terminal; use 'backups list'")
			}
			store := a.backupStore()
			list, err := store.List(cmd.String("calendar"))
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(a.Stdout, "No backups found")
				return nil
			}
			choice, err := tui.RunBackupList(list)
			if err != nil {
				return fmt.Errorf("backup browser: %w", err)
			}
			return a.applyBackupChoice(ctx, cmd, store, choice)
		},
	}
}

// applyBackupChoice carries out the action picked in the browser.
func (a *App) applyBackupChoice(ctx context.Context, cmd *cli.Command, store *backup.Store, choice tui.BackupListResult) error {
	id := choice.Backup.ID
	switch choice.Action {
	case tui.ActionVerify:
		if err := store.Verify(id); err != nil {
			fmt.Fprintln(a.Stdout, ui.StatusError(id))
			return err
		}
		fmt.Fprintln(a.Stdout, ui.StatusSuccess(id+" is intact"))
	case tui.ActionDelete:
		if err := store.Delete(id); err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, ui.StatusSuccess("Deleted "+id))
	case tui.ActionRestore:
		cfg, err := a.loadConfig(cmd)
		if err != nil {
			return err
		}
		return a.restore(ctx, cfg.CalendarByLabel, id, "", backup.RestoreOptions{})
	}
	return nil
}

// calendarLookup resolves an "account.label" reference.
type calendarLookup func(ref string) (*config.Account, *config.Calendar)
