// Package progress shows a progress bar across the rules of a sync run.
package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/sync"
	"github.com/klauern/calmirror/internal/ui"
)

// Bar wraps progressbar. A disabled Bar logs at debug level instead of
// drawing, so callers never need to check whether output is a terminal.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
	logger  *slog.Logger
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the total number of steps.
	Max int
	// Description is the prefix text shown before the bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Logger receives start and finish lines when the bar is hidden.
	Logger *slog.Logger
}

// New creates a progress bar. The bar is only drawn when colors are enabled,
// the writer is a terminal, and the logger is not at debug level.
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	b := &Bar{
		enabled: shouldShow(opts.Writer, opts.Logger),
		desc:    opts.Description,
		logger:  opts.Logger,
	}

	if !b.enabled {
		b.logger.Debug(opts.Description+" started", logging.Count(opts.Max))
		return b
	}

	b.bar = progressbar.NewOptions(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)
	return b
}

// ForRules returns a bar sized to a sync run over n rules.
func ForRules(n int, w io.Writer, logger *slog.Logger) *Bar {
	return New(Options{Max: n, Description: "Syncing rules", Writer: w, Logger: logger})
}

// RuleDone advances the bar by one rule and shows its outcome. It has the
// signature expected by sync.WithRuleDone.
func (b *Bar) RuleDone(rr *sync.RuleResult) {
	c := rr.Counts()
	desc := fmt.Sprintf("%s: synced %d, deleted %d", rr.RuleID, c.Synced, c.Deleted)
	if !rr.Success() {
		desc = rr.RuleID + ": failed"
	}
	b.Describe(desc)
	_ = b.Add(1)
}

// Add increments the bar by n steps.
func (b *Bar) Add(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Add(n)
}

// Describe updates the bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		b.logger.Debug("progress", slog.String("step", desc))
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the bar.
func (b *Bar) Finish() error {
	if !b.enabled {
		b.logger.Debug("progress finished", slog.String("step", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Enabled reports whether the bar is drawn.
func (b *Bar) Enabled() bool {
	return b.enabled
}

func shouldShow(w io.Writer, logger *slog.Logger) bool {
	if !ui.IsColorEnabled() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return !logger.Enabled(context.Background(), logging.LevelDebug)
}
