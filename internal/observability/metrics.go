// File: internal/observability/metrics.go
package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/xkilldash9x/relist-cli/internal/config"
)

const metricsNamespace = "relist"

// RunMetrics counts what a single run did. A run is a short-lived batch
// process, so metrics live in a private registry and are pushed once at the
// end instead of being scraped.
type RunMetrics struct {
	registry *prometheus.Registry

	TargetsDiscovered prometheus.Counter
	ActionsAttempted  prometheus.Counter
	ActionsConfirmed  prometheus.Counter
	ActionsFailed     prometheus.Counter
	SessionLosses     prometheus.Counter
	RunsCompleted     *prometheus.CounterVec
	RunDuration       prometheus.Gauge
}

// NewRunMetrics registers the run counters in a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &RunMetrics{
		registry: reg,
		TargetsDiscovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "targets_discovered_total",
			Help:      "Actionable listings found across all discoveries of the run.",
		}),
		ActionsAttempted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_attempted_total",
			Help:      "Repost clicks attempted.",
		}),
		ActionsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_confirmed_total",
			Help:      "Repost clicks followed by a successful session verification.",
		}),
		ActionsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_failed_total",
			Help:      "Repost clicks rejected by the page.",
		}),
		SessionLosses: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_losses_total",
			Help:      "Runs stopped because the session was lost mid-loop.",
		}),
		RunsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_completed_total",
			Help:      "Completed runs by terminal status and error code.",
		}, []string{"status", "error_code"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// Push sends the run's metrics to the configured Pushgateway. It is a no-op
// when no gateway is configured.
func (m *RunMetrics) Push(ctx context.Context, cfg config.MetricsConfig, runID string) error {
	if m == nil || cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "relist_cli"
	}
	pusher := push.New(cfg.PushgatewayURL, job).
		Gatherer(m.registry).
		Grouping("run_id", runID)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push run metrics to %s: %w", cfg.PushgatewayURL, err)
	}
	return nil
}
