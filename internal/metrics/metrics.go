// Package metrics exposes Prometheus collectors that report reconciliation
// activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "calmirror"

// Metrics holds the reconciliation collectors.
type Metrics struct {
	events         *prometheus.CounterVec
	ruleRuns       *prometheus.CounterVec
	ruleDuration   *prometheus.HistogramVec
	fetchFallbacks prometheus.Counter
	lastSuccess    prometheus.Gauge
}

// New constructs Metrics and registers them with reg, or with the default
// registerer when reg is nil. Collectors that are already registered are
// reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Mirror events processed, by rule and action.",
		}, []string{"rule", "action"}),
		ruleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_runs_total",
			Help:      "Sync rule executions, by rule and outcome.",
		}, []string{"rule", "status"}),
		ruleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_duration_seconds",
			Help:      "Wall time spent reconciling one rule.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule"}),
		fetchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_fallbacks_total",
			Help:      "Windowed event listings that fell back to an unranged query.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run in which every rule succeeded.",
		}),
	}

	var err error
	m.events, err = register(reg, m.events)
	if err != nil {
		return nil, err
	}
	m.ruleRuns, err = register(reg, m.ruleRuns)
	if err != nil {
		return nil, err
	}
	m.ruleDuration, err = register(reg, m.ruleDuration)
	if err != nil {
		return nil, err
	}
	m.fetchFallbacks, err = register(reg, m.fetchFallbacks)
	if err != nil {
		return nil, err
	}
	m.lastSuccess, err = register(reg, m.lastSuccess)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordEvent counts one event outcome for a rule.
func (m *Metrics) RecordEvent(rule, action string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(rule, action).Inc()
}

// RecordRule counts one rule run and observes its duration.
func (m *Metrics) RecordRule(rule string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.ruleRuns.WithLabelValues(rule, status).Inc()
	m.ruleDuration.WithLabelValues(rule).Observe(d.Seconds())
}

// IncFetchFallback counts a windowed query that fell back to unranged.
func (m *Metrics) IncFetchFallback() {
	if m == nil {
		return
	}
	m.fetchFallbacks.Inc()
}

// MarkSuccess records the time of a fully successful run.
func (m *Metrics) MarkSuccess(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(t.Unix()))
}
