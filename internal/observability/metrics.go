// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CurrentIteration prometheus.Gauge

	// Liquidity metrics
	WithdrawalsTotal   *prometheus.CounterVec
	PendingWithdrawal  prometheus.Gauge
	WithdrawalDelaySec prometheus.Gauge

	// Transaction metrics
	SubmissionAttempts *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	ConfirmationTime   prometheus.Histogram

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	WSReconnects   prometheus.Counter

	// State metrics
	StateWrites      *prometheus.CounterVec
	LastStateWriteTS prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pool_cycler"
	}

	return &Metrics{
		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of cycle runs by outcome",
		}, []string{"outcome"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Mint-and-seed phase duration in seconds",
			Buckets:   []float64{5, 10, 30, 60, 120, 300, 600},
		}),
		CurrentIteration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "current_iteration",
			Help:      "Iteration counter of the most recent cycle",
		}),

		// Liquidity metrics
		WithdrawalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "withdrawals_total",
			Help:      "Total number of liquidity withdrawals by outcome",
		}, []string{"outcome"}),
		PendingWithdrawal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "pending_withdrawal",
			Help:      "1 when a withdrawal is scheduled and not yet executed",
		}),
		WithdrawalDelaySec: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "withdrawal_delay_seconds",
			Help:      "Delay chosen for the most recent scheduled withdrawal",
		}),

		// Transaction metrics
		SubmissionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submission_attempts_total",
			Help:      "Total number of transaction submission attempts by label",
		}, []string{"label"}),
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submissions_total",
			Help:      "Total number of transaction submissions by label and status",
		}, []string{"label", "status"}),
		ConfirmationTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "confirmation_seconds",
			Help:      "Time from broadcast to confirmation in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60},
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),

		// State metrics
		StateWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "writes_total",
			Help:      "Total number of state writes by status",
		}, []string{"status"}),
		LastStateWriteTS: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "last_write_timestamp",
			Help:      "Unix timestamp of the last successful state write",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a completed or failed cycle run.
func RecordCycle(outcome string, duration time.Duration) {
	DefaultMetrics.CyclesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.CycleDuration.Observe(duration.Seconds())
}

// UpdateIteration updates the current iteration gauge.
func UpdateIteration(iteration int64) {
	DefaultMetrics.CurrentIteration.Set(float64(iteration))
}

// RecordWithdrawal records a liquidity withdrawal attempt.
func RecordWithdrawal(outcome string) {
	DefaultMetrics.WithdrawalsTotal.WithLabelValues(outcome).Inc()
}

// SetPendingWithdrawal flags whether a withdrawal is scheduled.
func SetPendingWithdrawal(pending bool) {
	if pending {
		DefaultMetrics.PendingWithdrawal.Set(1)
	} else {
		DefaultMetrics.PendingWithdrawal.Set(0)
	}
}

// RecordWithdrawalDelay records the delay chosen for a scheduled withdrawal.
func RecordWithdrawalDelay(delay time.Duration) {
	DefaultMetrics.WithdrawalDelaySec.Set(delay.Seconds())
}

// RecordSubmissionAttempt increments the attempt counter for a transaction label.
func RecordSubmissionAttempt(label string) {
	DefaultMetrics.SubmissionAttempts.WithLabelValues(label).Inc()
}

// RecordSubmission records the terminal outcome of a transaction submission.
func RecordSubmission(label, status string) {
	DefaultMetrics.SubmissionsTotal.WithLabelValues(label, status).Inc()
}

// RecordConfirmationTime records broadcast-to-confirmation latency.
func RecordConfirmationTime(d time.Duration) {
	DefaultMetrics.ConfirmationTime.Observe(d.Seconds())
}

// ObserveRPCCall records RPC call latency and failures.
func ObserveRPCCall(method string, d time.Duration, ok bool) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if !ok {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSReconnect increments the WebSocket reconnection counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordStateWrite records a state write attempt.
func RecordStateWrite(err error) {
	if err != nil {
		DefaultMetrics.StateWrites.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.StateWrites.WithLabelValues("ok").Inc()
	DefaultMetrics.LastStateWriteTS.SetToCurrentTime()
}
