// Package metrics exposes Prometheus metrics and the /healthz probe.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketlens/internal/marketdata/agg"
	"marketlens/internal/marketdata/live"
	"marketlens/internal/model"
)

// Metrics holds all Prometheus metrics for marketlens.
type Metrics struct {
	// Upstream provider
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint, outcome
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint
	HistoryFallbacks *prometheus.CounterVec   // labels: tf

	// Analysis pipeline
	AnalysesTotal     *prometheus.CounterVec // labels: tf, outcome
	AnalysisDuration  prometheus.Histogram
	PartialIndicators *prometheus.CounterVec // labels: indicator
	SetupsTotal       *prometheus.CounterVec // labels: direction

	// Live sessions
	StreamState        *prometheus.GaugeVec   // labels: symbol; model.ConnectionState value
	StreamReconnects   prometheus.Counter     // scheduled reconnects
	TicksTotal         *prometheus.CounterVec // labels: outcome
	PollsTotal         *prometheus.CounterVec // labels: outcome
	RefreshDuration    prometheus.Histogram
	RefreshFailures    prometheus.Counter
	SnapshotDropsTotal prometheus.Counter

	// Storage
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisRejectedCalls       prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_upstream_requests_total",
			Help: "Provider requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketlens_upstream_request_duration_seconds",
			Help:    "Provider request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"endpoint"}),
		HistoryFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_history_fallbacks_total",
			Help: "History attempts that failed and fell through to the next base resolution",
		}, []string{"tf"}),

		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_analyses_total",
			Help: "Analysis runs by timeframe and outcome",
		}, []string{"tf", "outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketlens_analysis_duration_seconds",
			Help:    "End-to-end analysis latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PartialIndicators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_partial_indicators_total",
			Help: "Remote indicators that degraded to null",
		}, []string{"indicator"}),
		SetupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_trade_setups_total",
			Help: "Trade setups produced by direction (none when no scenario qualified)",
		}, []string{"direction"}),

		StreamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketlens_stream_state",
			Help: "Streaming connection state (0=idle, 1=connecting, 2=open, 3=closed, 4=reconnect_scheduled)",
		}, []string{"symbol"}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_stream_reconnects_total",
			Help: "Scheduled streaming reconnects",
		}),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_ticks_total",
			Help: "Streaming ticks by merge outcome",
		}, []string{"outcome"}),
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketlens_polls_total",
			Help: "Fallback polls by merge outcome",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketlens_refresh_duration_seconds",
			Help:    "Full history refresh latency",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_refresh_failures_total",
			Help: "Full refreshes that failed and kept the previous series",
		}),
		SnapshotDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_snapshot_drops_total",
			Help: "Snapshots dropped for slow observers",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketlens_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketlens_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisRejectedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketlens_redis_rejected_calls_total",
			Help: "Redis calls rejected while the circuit breaker was open",
		}),
	}

	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.HistoryFallbacks,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.PartialIndicators,
		m.SetupsTotal,
		m.StreamState,
		m.StreamReconnects,
		m.TicksTotal,
		m.PollsTotal,
		m.RefreshDuration,
		m.RefreshFailures,
		m.SnapshotDropsTotal,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisRejectedCalls,
	)

	return m
}

// Outcome labels a result as ok, or by error class.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNoData):
		return "no_data"
	default:
		return "upstream"
	}
}

// ObserveRequest records one provider call. Its signature matches the
// provider client's OnRequest hook.
func (m *Metrics) ObserveRequest(endpoint string, d time.Duration, err error) {
	m.UpstreamRequests.WithLabelValues(endpoint, Outcome(err)).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveAnalysis records one analysis run.
func (m *Metrics) ObserveAnalysis(tf model.Timeframe, d time.Duration, err error) {
	m.AnalysesTotal.WithLabelValues(string(tf), Outcome(err)).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// ObserveReport records setup and partial-indicator counts of a report.
func (m *Metrics) ObserveReport(r model.Report) {
	dir := "none"
	if r.Setup != nil {
		dir = string(r.Setup.Direction)
	}
	m.SetupsTotal.WithLabelValues(dir).Inc()
	for _, name := range r.Partial {
		m.PartialIndicators.WithLabelValues(name).Inc()
	}
}

// LiveHooks returns session hooks that feed the live metrics and, when
// health is non-nil, the stream fields of the health probe.
func (m *Metrics) LiveHooks(symbol string, health *HealthStatus) live.Hooks {
	return live.Hooks{
		OnStateChange: func(_, to model.ConnectionState) {
			m.StreamState.WithLabelValues(symbol).Set(float64(to))
			if to == model.ReconnectScheduled {
				m.StreamReconnects.Inc()
			}
			if health != nil {
				health.SetStreamOpen(to == model.Open)
			}
		},
		OnTick: func(o agg.Outcome) {
			m.TicksTotal.WithLabelValues(o.String()).Inc()
			if health != nil && o != agg.Rejected {
				health.SetLastTickTime(time.Now())
			}
		},
		OnPoll: func(o agg.Outcome, err error) {
			label := o.String()
			if err != nil {
				label = "error"
			}
			m.PollsTotal.WithLabelValues(label).Inc()
		},
		OnRefresh: func(d time.Duration, err error) {
			m.RefreshDuration.Observe(d.Seconds())
			if err != nil {
				m.RefreshFailures.Inc()
			}
			if health != nil {
				health.SetUpstreamOK(err == nil)
			}
		},
		OnDrop: m.SnapshotDropsTotal.Inc,
	}
}

// ObserveBreaker records a Redis circuit breaker transition; to follows
// the gauge numbering (0=closed, 1=open, 2=half-open).
func (m *Metrics) ObserveBreaker(to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
