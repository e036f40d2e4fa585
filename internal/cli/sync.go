package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/export"
	"github.com/klauern/calmirror/internal/progress"
	"github.com/klauern/calmirror/internal/sync"
	"github.com/klauern/calmirror/internal/ui"
	"github.com/klauern/calmirror/internal/ui/tui"
)

// errRunFailed is returned when a run finished but some rule, target or
// event failed. The details are already in the printed result.
var errRunFailed = errors.New("sync finished with failures")

func (a *App) syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Mirror source calendars into their destinations",
		ArgsUsage: "[rule-id...]",
		Description: `Runs the named sync rules, or every rule when none is given.

   Examples:
     calmirror sync
     calmirror sync --dry-run work_to_personal
     calmirror sync --interactive`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show what would change without writing to any calendar",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Browse the dry-run plan and optionally apply it",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, yaml, markdown (default from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			format, err := a.format(cmd, cfg)
			if err != nil {
				return err
			}
			rules, err := selectRules(cfg, cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Fprintln(a.Stdout, ui.StatusWarning("no enabled sync rules"))
				return nil
			}

			if cmd.Bool("interactive") {
				return a.syncInteractive(ctx, cfg, rules)
			}

			res := a.runSync(ctx, cfg, rules, cmd.Bool("dry-run"))
			if err := export.WriteResult(a.Stdout, res, format); err != nil {
				return err
			}
			if !res.Success() {
				return errRunFailed
			}
			return nil
		},
	}
}

func (a *App) runSync(ctx context.Context, cfg *config.Config, rules []config.SyncRule, dryRun bool) *sync.RunResult {
	bar := progress.ForRules(len(rules), a.Stderr, a.logger)
	rec := sync.NewReconciler(cfg, a.sessions(),
		sync.WithLogger(a.logger),
		sync.WithRuleDone(bar.RuleDone),
	)
	res := rec.SyncAll(ctx, rules, dryRun)
	_ = bar.Finish()
	return res
}

// syncInteractive runs a dry run, shows the plan and applies it only when
// the user confirms.
func (a *App) syncInteractive(ctx context.Context, cfg *config.Config, rules []config.SyncRule) error {
	if !isTerminal(a.Stdout) {
		return errors.New("--interactive requires a terminal")
	}

	plan := a.runSync(ctx, cfg, rules, true)
	choice, err := tui.RunPlanList(plan.Plan())
	if err != nil {
		return fmt.Errorf("plan browser: %w", err)
	}
	if !choice.Apply {
		if err := export.WriteResult(a.Stdout, plan, export.FormatTable); err != nil {
			return err
		}
		return nil
	}

	res := a.runSync(ctx, cfg, rules, false)
	if err := export.WriteResult(a.Stdout, res, export.FormatTable); err != nil {
		return err
	}
	if !res.Success() {
		return errRunFailed
	}
	return nil
}

// selectRules resolves rule ids. No ids means every enabled rule.
func selectRules(cfg *config.Config, ids []string) ([]config.SyncRule, error) {
	if len(ids) == 0 {
		return cfg.EnabledRules(), nil
	}
	rules := make([]config.SyncRule, 0, len(ids))
	for _, id := range ids {
		rule := cfg.Rule(id)
		if rule == nil {
			return nil, fmt.Errorf("unknown sync rule %q", id)
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

func (a *App) format(cmd *cli.Command, cfg *config.Config) (export.Format, error) {
	name := cmd.String("format")
	if name == "" {
		name = cfg.Output.Format
	}
	return export.ParseFormat(name)
}

func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
