package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/export"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/sync"
	"github.com/klauern/calmirror/internal/util"
)

func (a *App) exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a rule's mirrors as an ICS calendar",
		Description: `Collects the mirrors a rule created in its destinations and writes
   them as iCalendar, including their provenance.

   Examples:
     calmirror export --rule work_to_personal > mirrors.ics
     calmirror export --rule work_to_personal --target personal.main -o mirrors.ics`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "rule",
				Aliases:  []string{"r"},
				Usage:    "Sync rule whose mirrors to export",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "Only this destination calendar (account.label)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "Output file, or - for stdout",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			rule := cfg.Rule(cmd.String("rule"))
			if rule == nil {
				return fmt.Errorf("unknown sync rule %q", cmd.String("rule"))
			}
			targets, err := exportTargets(*rule, cmd.String("target"))
			if err != nil {
				return err
			}

			records, err := a.collectMirrors(ctx, cfg, rule.ID, targets)
			if err != nil {
				return err
			}

			out := cmd.String("output")
			if out == "-" || out == "" {
				return export.WriteICS(a.Stdout, rule.ID, records, a.Now())
			}
			return writeICSFile(util.ExpandPath(out), rule.ID, records, a.Now())
		},
	}
}

func exportTargets(rule config.SyncRule, only string) ([]config.SyncTarget, error) {
	targets := rule.EnabledTargets()
	if only == "" {
		return targets, nil
	}
	for _, t := range targets {
		if t.Calendar == only {
			return []config.SyncTarget{t}, nil
		}
	}
	return nil, fmt.Errorf("rule %q has no enabled target %q", rule.ID, only)
}

// collectMirrors searches each target for events carrying the rule flag.
func (a *App) collectMirrors(ctx context.Context, cfg *config.Config, ruleID string, targets []config.SyncTarget) ([]model.Record, error) {
	filter := cfg.RuleTags(ruleID).RuleFilter()
	provider := a.sessions()

	var records []model.Record
	for _, t := range targets {
		acct, cal := cfg.CalendarByLabel(t.Calendar)
		if acct == nil || cal == nil {
			return nil, fmt.Errorf("target %q is not a configured calendar", t.Calendar)
		}
		s, err := provider.Session(ctx, *acct)
		if err != nil {
			return nil, fmt.Errorf("open session for %s: %w", acct.Name, err)
		}
		events, err := sync.Search(ctx, s, cal.CalendarID, filter)
		if err != nil {
			return nil, err
		}
		found := decodeMirrors(events, a.logger)
		a.logger.Debug("collected mirrors", logging.Rule(ruleID), logging.Target(t.Calendar), logging.Count(len(found)))
		records = append(records, found...)
	}
	return records, nil
}

func writeICSFile(path, name string, records []model.Record, stamp time.Time) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return export.WriteICS(f, name, records, stamp)
}
