package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds every Prometheus metric the orchestrator and
// domain layers report against.
type MetricsRegistry struct {
	SignalsReceivedTotal prometheus.Counter
	SignalsExecutedTotal *prometheus.CounterVec

	EquityZAR   prometheus.Gauge
	SlippagePct prometheus.Histogram
	Expectancy  prometheus.Gauge

	HITLRequestsTotal        prometheus.Counter
	HITLApprovalsTotal       prometheus.Counter
	HITLRejectionsTotal      *prometheus.CounterVec
	HITLRejectionsTimeout    prometheus.Counter
	HITLResponseLatency      prometheus.Histogram
	BlockedByGuardianTotal   prometheus.Counter

	RGITrustProbability   prometheus.Gauge
	RGIAdjustedConfidence prometheus.Gauge
	RGISafeModeActive     prometheus.Gauge
	RGIModelLoaded        prometheus.Gauge
}

// NewMetricsRegistry builds and registers every metric named in §6.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		SignalsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_signals_received_total",
			Help: "Total webhook signals accepted by the ingress.",
		}),
		SignalsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_signals_executed_total",
			Help: "Total signals that reached order execution, by outcome.",
		}, []string{"outcome"}),

		EquityZAR: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_equity_zar",
			Help: "Current account equity in ZAR.",
		}),
		SlippagePct: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_slippage_pct",
			Help:    "Realized slippage as a fraction of requested price.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05},
		}),
		Expectancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_expectancy",
			Help: "Rolling trade expectancy derived from closed trades.",
		}),

		HITLRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_hitl_requests_total",
			Help: "Total HITL approval requests created.",
		}),
		HITLApprovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_hitl_approvals_total",
			Help: "Total HITL requests approved by an operator.",
		}),
		HITLRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_hitl_rejections_total",
			Help: "Total HITL requests rejected, by reason.",
		}, []string{"reason"}),
		HITLRejectionsTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_hitl_rejections_timeout_total",
			Help: "Total HITL requests rejected for exceeding their TTL.",
		}),
		HITLResponseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_hitl_response_latency_seconds",
			Help:    "Time from HITL request creation to operator decision.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		BlockedByGuardianTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_blocked_by_guardian_total",
			Help: "Total operations refused because the Guardian hard-stop was engaged.",
		}),

		RGITrustProbability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_rgi_trust_probability",
			Help: "Most recent RGI model trust probability.",
		}),
		RGIAdjustedConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_rgi_adjusted_confidence",
			Help: "Most recent RGI adjusted confidence score.",
		}),
		RGISafeModeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_rgi_safe_mode_active",
			Help: "1 when RGI has latched into safe mode, 0 otherwise.",
		}),
		RGIModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_rgi_model_loaded",
			Help: "1 when the RGI trust model has a prediction path wired, 0 if failing safe to neutral.",
		}),
	}

	prometheus.MustRegister(
		m.SignalsReceivedTotal, m.SignalsExecutedTotal,
		m.EquityZAR, m.SlippagePct, m.Expectancy,
		m.HITLRequestsTotal, m.HITLApprovalsTotal, m.HITLRejectionsTotal,
		m.HITLRejectionsTimeout, m.HITLResponseLatency, m.BlockedByGuardianTotal,
		m.RGITrustProbability, m.RGIAdjustedConfidence, m.RGISafeModeActive, m.RGIModelLoaded,
	)

	return m
}

// MetricsHandler exposes the registry at /metrics for Prometheus scraping.
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHITLDecisionLatency records the wall-clock time between a HITL
// request's creation and its terminal decision.
func (m *MetricsRegistry) RecordHITLDecisionLatency(createdAt time.Time) {
	m.HITLResponseLatency.Observe(time.Since(createdAt).Seconds())
}
