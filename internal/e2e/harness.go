// Package e2e provides testing infrastructure for end-to-end CLI tests.
// Commands run in-process against an isolated home directory, ICS feeds
// written to disk and an in-memory stand-in for Google Calendar.
package e2e

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/calendar/ics"
	"github.com/klauern/calmirror/internal/cli"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	Stdout string
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness runs calmirror command lines in an isolated environment.
type Harness struct {
	t          *testing.T
	homeDir    string
	configPath string
	sessions   *sessions
}

// sessions serves ICS accounts from disk and every other account from one
// shared in-memory calendar store.
type sessions struct {
	mem  *calendar.Memory
	feed *ics.Session
}

func (s *sessions) Session(_ context.Context, acct config.Account) (calendar.Session, error) {
	if acct.IsICS() {
		return s.feed, nil
	}
	return s.mem, nil
}

// overrides are cleared so the host environment cannot change the config.
var overrides = []string{
	"CALMIRROR_IDENTIFIER",
	"CALMIRROR_LOG_LEVEL",
	"CALMIRROR_SCHEDULE",
	"CALMIRROR_METRICS_LISTEN",
	"CALMIRROR_WINDOW_PAST_DAYS",
	"CALMIRROR_WINDOW_FUTURE_DAYS",
	"CALMIRROR_OUTPUT_FORMAT",
}

// NewHarness creates a harness whose Google side knows calendarIDs.
// HOME and the XDG directories point into a temp dir for the test.
func NewHarness(t *testing.T, calendarIDs ...string) *Harness {
	t.Helper()

	homeDir := t.TempDir()
	h := &Harness{
		t:          t,
		homeDir:    homeDir,
		configPath: filepath.Join(homeDir, ".config", "calmirror", "config.yaml"),
		sessions: &sessions{
			mem:  calendar.NewMemory(calendarIDs...),
			feed: ics.New(ics.WithLogger(logging.Discard())),
		},
	}

	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(homeDir, ".local", "share"))
	t.Setenv("CALMIRROR_CONFIG", h.configPath)
	for _, key := range overrides {
		t.Setenv(key, "")
	}
	return h
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// ConfigPath is where commands look for the config file.
func (h *Harness) ConfigPath() string {
	return h.configPath
}

// Calendar returns the in-memory destination store.
func (h *Harness) Calendar() *calendar.Memory {
	return h.sessions.mem
}

// WriteConfig saves cfg where commands will find it.
func (h *Harness) WriteConfig(cfg *config.Config) {
	h.t.Helper()
	if err := cfg.SaveToPath(h.configPath); err != nil {
		h.t.Fatalf("failed to write config: %v", err)
	}
}

// Run executes a CLI command with the given arguments and captures the output.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	// Prepend "calmirror" as the program name if not provided
	if len(args) == 0 || args[0] != "calmirror" {
		args = append([]string{"calmirror"}, args...)
	}

	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Stdout:   &stdout,
		Stderr:   &stderr,
		Sessions: h.sessions,
		Now:      time.Now,
	}
	cmdErr := app.Run(context.Background(), args)

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}
	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}
