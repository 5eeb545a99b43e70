// Package metrics exposes Prometheus metrics for the monitor. All methods are
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Daily check metrics
	ChecksTotal   *prometheus.CounterVec
	TriggersTotal *prometheus.CounterVec
	LastCheck     prometheus.Gauge
	LastClose     *prometheus.GaugeVec
	MonthDecline  *prometheus.GaugeVec
	CheckDuration prometheus.Histogram

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Breadth metrics
	Breadth               *prometheus.GaugeVec
	BreadthSourceFailures *prometheus.CounterVec

	// Backtest metrics
	BacktestRuns     prometheus.Counter
	BacktestDuration prometheus.Histogram
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dip_sentinel"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "checks_total",
			Help:      "Total number of daily checks by outcome",
		}, []string{"status"}),
		TriggersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "triggers_total",
			Help:      "Total number of trigger events by type",
		}, []string{"type"}),
		LastCheck: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the last completed daily check",
		}),
		LastClose: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_close",
			Help:      "Closing price used by the last daily check",
		}, []string{"symbol"}),
		MonthDecline: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "month_cumulative_decline",
			Help:      "Decline of the last close from the month start price",
		}, []string{"symbol"}),
		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "check_duration_seconds",
			Help:      "Daily check duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "messages_total",
			Help:      "Total number of notification attempts by channel and result",
		}, []string{"channel", "result"}),

		Breadth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breadth",
			Name:      "value_percent",
			Help:      "Last market breadth value by source",
		}, []string{"source"}),
		BreadthSourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breadth",
			Name:      "source_failures_total",
			Help:      "Total number of failed breadth source lookups",
		}, []string{"source"}),

		BacktestRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of completed backtest runs",
		}),
		BacktestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CheckCompleted records a finished daily check.
func (m *Metrics) CheckCompleted(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(status).Inc()
	m.CheckDuration.Observe(took.Seconds())
	m.LastCheck.SetToCurrentTime()
}

// ObservePosition records the close and month decline seen by a check.
func (m *Metrics) ObservePosition(symbol string, close, decline float64) {
	if m == nil {
		return
	}
	m.LastClose.WithLabelValues(symbol).Set(close)
	m.MonthDecline.WithLabelValues(symbol).Set(decline)
}

// TriggerFired counts one trigger event.
func (m *Metrics) TriggerFired(triggerType string) {
	if m == nil {
		return
	}
	m.TriggersTotal.WithLabelValues(triggerType).Inc()
}

// NotificationSent counts one notification attempt.
func (m *Metrics) NotificationSent(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(channel, result).Inc()
}

// ObserveBreadth records the breadth value a source returned.
func (m *Metrics) ObserveBreadth(source string, value float64) {
	if m == nil {
		return
	}
	m.Breadth.WithLabelValues(source).Set(value)
}

// BreadthSourceFailed counts one failed breadth lookup.
func (m *Metrics) BreadthSourceFailed(source string) {
	if m == nil {
		return
	}
	m.BreadthSourceFailures.WithLabelValues(source).Inc()
}

// BacktestCompleted records a finished backtest run.
func (m *Metrics) BacktestCompleted(took time.Duration) {
	if m == nil {
		return
	}
	m.BacktestRuns.Inc()
	m.BacktestDuration.Observe(took.Seconds())
}
