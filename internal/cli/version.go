package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"
)

func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Display version and build information",
		Action: func(_ context.Context, _ *cli.Command) error {
			fmt.Fprintf(a.Stdout, "calmirror version %s\n", Version)
			fmt.Fprintf(a.Stdout, "  commit: %s\n", Commit)
			fmt.Fprintf(a.Stdout, "  built: %s\n", BuildDate)
			fmt.Fprintf(a.Stdout, "  go: %s\n", runtime.Version())
			return nil
		},
	}
}
