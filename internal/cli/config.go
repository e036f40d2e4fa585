package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/ui"
	"github.com/klauern/calmirror/internal/util"
)

func (a *App) configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Create, show and validate the configuration",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write an example config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config file"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := config.ResolvePath(cmd.Root().String("config"))
					if config.Exists(path) && !cmd.Bool("force") {
						return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
					}
					if err := util.WriteFileAtomic(path, []byte(config.ExampleConfig()), 0o600); err != nil {
						return fmt.Errorf("write config: %w", err)
					}
					fmt.Fprintln(a.Stdout, ui.StatusSuccess("wrote "+path))
					fmt.Fprintln(a.Stdout, "Edit the accounts and sync_rules, then run 'calmirror auth'.")
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "yaml", Usage: "Output format: yaml, json"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := a.loadConfig(cmd)
					if err != nil {
						return err
					}
					switch cmd.String("format") {
					case "yaml":
						enc := yaml.NewEncoder(a.Stdout)
						enc.SetIndent(2)
						if err := enc.Encode(cfg); err != nil {
							return err
						}
						return enc.Close()
					case "json":
						enc := json.NewEncoder(a.Stdout)
						enc.SetIndent("", "  ")
						return enc.Encode(cfg)
					default:
						return fmt.Errorf("unsupported format %q (valid: yaml, json)", cmd.String("format"))
					}
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Fprintln(a.Stdout, config.ResolvePath(cmd.Root().String("config")))
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check accounts, calendars and rules for mistakes",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := config.ResolvePath(cmd.Root().String("config"))
					cfg, err := config.Load(path)
					if err != nil {
						return err
					}
					for _, w := range cfg.Warnings() {
						fmt.Fprintln(a.Stdout, ui.StatusWarning(w))
					}
					verr := cfg.Validate()
					if verr == nil {
						fmt.Fprintln(a.Stdout, ui.StatusSuccess(path+" is valid"))
						return nil
					}
					var errs config.Errors
					if errors.As(verr, &errs) {
						for _, e := range errs {
							fmt.Fprintln(a.Stdout, ui.StatusError(e.Error()))
						}
					} else {
						fmt.Fprintln(a.Stdout, ui.StatusError(verr.Error()))
					}
					return fmt.Errorf("%s has %s", path, plural(countErrors(verr), "problem"))
				},
			},
		},
	}
}

func countErrors(err error) int {
	var errs config.Errors
	if errors.As(err, &errs) {
		return len(errs)
	}
	return 1
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
