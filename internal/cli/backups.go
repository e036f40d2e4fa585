package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/klauern/calmirror/internal/backup"
	"github.com/klauern/calmirror/internal/ui"
)

func (a *App) backupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "backups",
		Usage: "Inspect, restore and move snapshots taken before purges",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List snapshots, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "calendar", Usage: "Only snapshots of this calendar label"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					list, err := a.backupStore().List(cmd.String("calendar"))
					if err != nil {
						return err
					}
					if len(list) == 0 {
						fmt.Fprintln(a.Stdout, "No backups found")
						return nil
					}
					for _, m := range list {
						fmt.Fprintf(a.Stdout, "%s  %s  %-24s %s\n",
							ui.Bold(m.ID), m.CreatedAt.Format("2006-01-02 15:04"), m.Calendar,
							ui.Dim(strconv.Itoa(m.Events)+" event(s)"))
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print a snapshot's ICS",
				ArgsUsage: "<backup-id>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					id, err := oneArg(cmd, "backup id")
					if err != nil {
						return err
					}
					data, err := a.backupStore().Read(id)
					if err != nil {
						return err
					}
					_, err = a.Stdout.Write(data)
					return err
				},
			},
			{
				Name:      "verify",
				Usage:     "Check a snapshot against its recorded hash",
				ArgsUsage: "<backup-id>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					id, err := oneArg(cmd, "backup id")
					if err != nil {
						return err
					}
					if err := a.backupStore().Verify(id); err != nil {
						fmt.Fprintln(a.Stdout, ui.StatusError(id))
						return err
					}
					fmt.Fprintln(a.Stdout, ui.StatusSuccess(id+" is intact"))
					return nil
				},
			},
			{
				Name:  "cleanup",
				Usage: "Delete snapshots outside the retention policy",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max", Value: backup.DefaultCleanupOptions().MaxBackups, Usage: "Snapshots to keep per calendar (0 = unlimited)"},
					&cli.DurationFlag{Name: "max-age", Value: backup.DefaultCleanupOptions().MaxAge, Usage: "Delete snapshots older than this (0 = never)"},
					&cli.StringFlag{Name: "calendar", Usage: "Only clean up this calendar label"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "List what would be deleted"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					opts := backup.CleanupOptions{
						MaxBackups:     cmd.Int("max"),
						MaxAge:         cmd.Duration("max-age"),
						KeepAtLeastOne: true,
						Calendar:       cmd.String("calendar"),
						DryRun:         cmd.Bool("dry-run"),
					}
					ids, err := a.backupStore().Cleanup(opts)
					verb := "Deleted"
					if opts.DryRun {
						verb = "Would delete"
					}
					for _, id := range ids {
						fmt.Fprintf(a.Stdout, "  %s\n", id)
					}
					fmt.Fprintf(a.Stdout, "%s %d backup(s)\n", verb, len(ids))
					return err
				},
			},
			a.backupRestoreCommand(),
			a.backupArchiveCommand(),
			a.backupImportCommand(),
			a.backupBrowseCommand(),
		},
	}
}

func (a *App) backupStore() *backup.Store {
	return backup.NewStore(a.BackupDir)
}

func oneArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.New("expected exactly one " + what)
	}
	return cmd.Args().First(), nil
}
