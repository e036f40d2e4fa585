package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/klauern/calmirror/internal/logging"
	"github.com/klauern/calmirror/internal/metrics"
	"github.com/klauern/calmirror/internal/scheduler"
	"github.com/klauern/calmirror/internal/sync"
)

const shutdownTimeout = 10 * time.Second

func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run every enabled rule on a schedule and expose metrics",
		Description: `Runs a sync immediately and then on the cron schedule from the config
   (or --schedule). Prometheus metrics are served on /metrics and run
   state on /healthz.

   Examples:
     calmirror serve
     calmirror serve --schedule "@every 5m" --listen 127.0.0.1:9464
     calmirror serve --once`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Metrics listen address; empty disables the HTTP server (default from config)",
			},
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "Cron expression or descriptor such as @hourly (default from config)",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single sync and exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m, err := metrics.New(reg)
			if err != nil {
				return err
			}
			d := &daemon{
				rec:    sync.NewReconciler(cfg, a.sessions(), sync.WithLogger(a.logger), sync.WithMetrics(m)),
				logger: a.logger,
				now:    a.Now,
			}

			if cmd.Bool("once") {
				d.run(ctx)
				if !d.status().OK {
					return errRunFailed
				}
				return nil
			}

			schedule := cmd.String("schedule")
			if schedule == "" {
				schedule = cfg.Schedule
			}
			sched, err := scheduler.New(schedule, d.run, a.logger)
			if err != nil {
				return err
			}

			listen := cfg.Metrics.Listen
			if cmd.IsSet("listen") {
				listen = cmd.String("listen")
			}
			errc := make(chan error, 1)
			if listen != "" {
				srv, ln, err := newMetricsServer(listen, reg, d)
				if err != nil {
					return err
				}
				a.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errc <- err
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			sched.Start(ctx)
			defer sched.Stop()
			go sched.RunNow()

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down")
				return nil
			case err := <-errc:
				return fmt.Errorf("metrics server: %w", err)
			}
		},
	}
}

// runStatus is the state reported on /healthz.
type runStatus struct {
	OK          bool          `json:"ok"`
	Runs        int           `json:"runs"`
	LastRun     time.Time     `json:"last_run,omitzero"`
	LastSuccess time.Time     `json:"last_success,omitzero"`
	LastError   string        `json:"last_error,omitempty"`
	Counts      sync.Counts   `json:"counts"`
	Duration    time.Duration `json:"duration_ns"`
}

// daemon runs scheduled syncs and remembers the outcome of the last one.
type daemon struct {
	rec    *sync.Reconciler
	logger *slog.Logger
	now    func() time.Time

	mu   gosync.Mutex
	last runStatus
}

func (d *daemon) run(ctx context.Context) {
	start := d.now()
	res := d.rec.SyncAll(ctx, nil, false)
	counts := res.Counts()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.last.Runs++
	d.last.LastRun = start
	d.last.Counts = counts
	d.last.Duration = d.now().Sub(start)
	d.last.OK = res.Success()
	d.last.LastError = ""
	if d.last.OK {
		d.last.LastSuccess = start
	} else {
		var ids []string
		for _, rr := range res.Failed() {
			ids = append(ids, rr.RuleID)
		}
		d.last.LastError = fmt.Sprintf("rules with failures: %v", ids)
	}

	d.logger.Info("scheduled sync finished",
		slog.Int("rules", len(res.Rules)),
		slog.Int("synced", counts.Synced),
		slog.Int("deleted", counts.Deleted),
		slog.Int("failed", counts.Failed),
		slog.Bool("ok", d.last.OK),
		logging.Operation("serve"),
	)
}

func (d *daemon) status() runStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// healthz reports 200 once a run has succeeded and the latest run was
// clean, 503 otherwise.
func (d *daemon) healthz(w http.ResponseWriter, _ *http.Request) {
	st := d.status()
	w.Header().Set("Content-Type", "application/json")
	if !st.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}

func newMetricsServer(addr string, reg *prometheus.Registry, d *daemon) (*http.Server, net.Listener, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", d.healthz)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, ln, nil
}
