package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/klauern/calmirror/internal/auth"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/ui"
)

func (a *App) authCommand() *cli.Command {
	return &cli.Command{
		Name:      "auth",
		Usage:     "Authorize Google accounts",
		ArgsUsage: "[account...]",
		Description: `Runs the OAuth2 device flow for the named accounts, or for every
   Google account in the config. Tokens are stored in the credentials
   directory. ICS accounts need no authorization and are skipped.

   Examples:
     calmirror auth --setup
     calmirror auth work`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "setup",
				Usage: "Write an OAuth2 client config template and exit",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-authorize accounts that already have a token, or overwrite the template",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("setup") {
				path := a.clientConfigPath()
				if err := auth.WriteTemplate(path, cmd.Bool("force")); err != nil {
					if errors.Is(err, auth.ErrExists) {
						return fmt.Errorf("%w (use --force to overwrite)", err)
					}
					return err
				}
				fmt.Fprintln(a.Stdout, ui.StatusSuccess("wrote "+path))
				fmt.Fprintln(a.Stdout, "Fill in client_id and client_secret, then run 'calmirror auth'.")
				return nil
			}

			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			accounts, err := selectAccounts(cfg, cmd.Args().Slice())
			if err != nil {
				return err
			}

			var client *auth.ClientConfig
			store := auth.NewTokenStore(a.CredentialsDir)
			force := cmd.Bool("force")

			var failed int
			for _, acct := range accounts {
				if acct.IsICS() {
					fmt.Fprintln(a.Stdout, ui.StatusSkipped(acct.Name+": ics account, nothing to authorize"))
					continue
				}
				if store.Exists(acct) && !force {
					fmt.Fprintln(a.Stdout, ui.StatusSuccess(acct.Name+": already authorized"))
					continue
				}
				if client == nil {
					if client, err = auth.LoadClientConfig(a.clientConfigPath()); err != nil {
						return err
					}
				}
				fmt.Fprintf(a.Stdout, "Authorizing %s...\n", ui.Bold(acct.Name))
				if err := auth.Login(ctx, client, store, acct, a.prompter(acct)); err != nil {
					a.logger.Error("authorization failed", logging.Account(acct.Name), logging.Err(err))
					fmt.Fprintln(a.Stdout, ui.StatusError(acct.Name+": "+err.Error()))
					failed++
					continue
				}
				fmt.Fprintln(a.Stdout, ui.StatusSuccess(acct.Name+": authorized, token saved to "+store.Path(acct)))
			}
			if failed > 0 {
				return fmt.Errorf("%s could not be authorized", plural(failed, "account"))
			}
			return nil
		},
	}
}

func (a *App) prompter(acct config.Account) auth.Prompter {
	if a.Prompt != nil {
		return a.Prompt
	}
	return func(resp *oauth2.DeviceAuthResponse) {
		url := resp.VerificationURIComplete
		if url == "" {
			url = resp.VerificationURI
		}
		hint := ""
		if acct.Email != "" {
			hint = " as " + acct.Email
		}
		fmt.Fprintf(a.Stderr, "  Open %s and sign in%s\n", ui.Info(url), hint)
		fmt.Fprintf(a.Stderr, "  Code: %s\n", ui.Bold(resp.UserCode))
	}
}

// selectAccounts resolves account names. No names means every account.
func selectAccounts(cfg *config.Config, names []string) ([]config.Account, error) {
	if len(names) == 0 {
		return cfg.Accounts, nil
	}
	out := make([]config.Account, 0, len(names))
	for _, name := range names {
		acct := cfg.Account(name)
		if acct == nil {
			return nil, fmt.Errorf("unknown account %q", name)
		}
		out = append(out, *acct)
	}
	return out, nil
}
