// Package scheduler runs a job on a cron schedule without overlapping runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/klauern/calmirror/internal/logging"
)

// Job is the scheduled work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler wraps a cron with a single job.
type Scheduler struct {
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	logger   *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  chan struct{}
}

// New parses schedule as a standard 5-field cron expression and registers
// job. A run that is still in progress when the next one is due causes the
// next one to be skipped.
func New(schedule string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Default()
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		schedule: schedule,
		logger:   logger,
		stopped:  make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)

	id, err := s.cron.AddFunc(schedule, func() {
		job(s.context())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start runs the cron in the background until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("schedule", s.schedule), slog.Time("next", s.Next()))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()
}

// Stop halts the cron and waits for a running job to finish. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.cancel()
		s.mu.Unlock()
		<-s.cron.Stop().Done()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow runs the job immediately through the same skip-if-running guard
// as scheduled runs. It blocks until the job returns or is skipped.
func (s *Scheduler) RunNow() {
	s.cron.Entry(s.entry).WrappedJob.Run()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{logging.Err(err)}, keysAndValues...)...)
}
