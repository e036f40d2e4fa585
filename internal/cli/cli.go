// Package cli provides the command-line interface for calmirror.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/klauern/calmirror/internal/auth"
	"github.com/klauern/calmirror/internal/cache"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/sync"
	"github.com/klauern/calmirror/internal/ui"
	"github.com/klauern/calmirror/internal/util"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// App holds the collaborators commands run against. The zero value is not
// usable; start from New.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// Sessions overrides the credential-backed session provider.
	Sessions sync.SessionProvider
	// Prompt shows the device-flow code during `auth`.
	Prompt auth.Prompter
	// Now is the clock used for exports and snapshots.
	Now func() time.Time
	// BackupDir overrides where purge snapshots are kept.
	BackupDir string
	// CredentialsDir overrides where tokens and the OAuth2 client live.
	CredentialsDir string

	logger  *slog.Logger
	logFile *os.File
}

// New returns an App wired to the process's stdout and stderr.
func New() *App {
	return &App{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Now:    time.Now,
	}
}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return New().Run(ctx, args)
}

// Run executes the command line in args against a.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.closeLog()
	return a.Command().Run(ctx, args)
}

// Command builds the root command.
func (a *App) Command() *cli.Command {
	return &cli.Command{
		Name:      "calmirror",
		Usage:     "Mirror calendar events into Google Calendar with privacy controls",
		Version:   Version,
		Writer:    a.Stdout,
		ErrWriter: a.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file (YAML or .toml); defaults to $CALMIRROR_CONFIG or the XDG config dir",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("no-color") {
				ui.DisableColors()
			}
			a.configureLogging(cmd)
			return ctx, nil
		},
		Commands: []*cli.Command{
			a.syncCommand(),
			a.purgeCommand(),
			a.authCommand(),
			a.configCommand(),
			a.serveCommand(),
			a.exportCommand(),
			a.backupsCommand(),
			a.versionCommand(),
		},
	}
}

// configureLogging sets the level from --debug and --verbose. Commands that
// load a config may then apply its log_level.
func (a *App) configureLogging(cmd *cli.Command) {
	opts := logging.DefaultOptions()
	opts.Output = a.Stderr

	switch {
	case cmd.Bool("debug"):
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	case cmd.Bool("verbose"):
		opts.Level = slog.LevelInfo
	}

	a.setLogger(logging.New(opts))
	a.logger.Debug("logging configured", slog.String("level", opts.Level.String()))
}

func (a *App) setLogger(logger *slog.Logger) {
	a.logger = logger
	logging.SetDefault(logger)
}

// applyConfig applies the config's log level, log file and color preference
// unless flags already decided them.
func (a *App) applyConfig(cmd *cli.Command, cfg *config.Config) {
	switch cfg.Output.Color {
	case "never":
		ui.DisableColors()
	case "always":
		if !cmd.Bool("no-color") {
			ui.EnableColors()
		}
	}

	flagLevel := cmd.Bool("debug") || cmd.Bool("verbose")
	if flagLevel && cfg.LogFile == "" {
		return
	}

	opts := logging.DefaultOptions()
	opts.Output = a.Stderr
	if level, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		a.logger.Warn("ignoring log_level", logging.Err(err))
	} else {
		opts.Level = level
	}
	switch {
	case cmd.Bool("debug"):
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	case cmd.Bool("verbose"):
		opts.Level = slog.LevelInfo
	}

	if cfg.LogFile != "" && a.logFile == nil {
		path := util.ExpandPath(cfg.LogFile)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			a.logger.Warn("cannot open log file", slog.String("path", path), logging.Err(err))
		} else {
			a.logFile = f
		}
	}
	if a.logFile != nil {
		opts.Output = io.MultiWriter(a.Stderr, a.logFile)
	}
	a.setLogger(logging.New(opts))
}

func (a *App) closeLog() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// loadConfig loads the config named by --config or the environment. A load
// failure is the one fatal error; validation problems are logged and left
// for the reconciler to skip around.
func (a *App) loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := config.ResolvePath(cmd.String("config"))
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("%w (run 'calmirror config init')", err)
		}
		return nil, err
	}
	a.applyConfig(cmd, cfg)
	a.logger.Debug("config loaded", slog.String("path", path))

	if verr := cfg.Validate(); verr != nil {
		a.logger.Warn("config has problems; affected rules or targets will be skipped", logging.Err(verr))
	}
	for _, w := range cfg.Warnings() {
		a.logger.Warn(w)
	}
	return cfg, nil
}

// sessions returns the injected provider or one backed by stored tokens.
// A missing OAuth2 client config is not fatal: ICS accounts still work and
// Google accounts report the missing client when their session is built.
func (a *App) sessions() sync.SessionProvider {
	if a.Sessions != nil {
		return a.Sessions
	}
	client, err := auth.LoadClientConfig(a.clientConfigPath())
	if err != nil {
		if !errors.Is(err, auth.ErrNoClientConfig) {
			a.logger.Warn("ignoring oauth2 client config", logging.Err(err))
		}
		client = nil
	}
	opts := []auth.ProviderOption{auth.WithLogger(a.logger)}
	if feeds, err := cache.New(""); err != nil {
		a.logger.Warn("ics feed cache disabled", logging.Err(err))
	} else {
		opts = append(opts, auth.WithFeedCache(feeds, cache.DefaultTTL))
	}
	return auth.NewProvider(client, auth.NewTokenStore(a.CredentialsDir), opts...)
}

func (a *App) clientConfigPath() string {
	if a.CredentialsDir != "" {
		return filepath.Join(a.CredentialsDir, auth.ClientConfigFile)
	}
	return auth.ClientConfigPath()
}
