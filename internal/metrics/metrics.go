// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the pipeline metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	admitted     *prometheus.CounterVec
	hurst        *prometheus.GaugeVec
	composite    *prometheus.GaugeVec
	circuitState *prometheus.GaugeVec
	external     *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	auditlogErrs prometheus.Counter
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtb_decisions_total",
			Help: "Symbol decisions by outcome and reason",
		}, []string{"symbol", "outcome", "reason"}),
		admitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtb_trades_admitted_total",
			Help: "Trades admitted into the ledger",
		}, []string{"symbol", "side", "strategy"}),
		hurst: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtb_hurst_exponent",
			Help: "Last Hurst exponent per symbol",
		}, []string{"symbol"}),
		composite: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtb_engine_score",
			Help: "Last exhaustion and chaos scores per symbol",
		}, []string{"symbol", "engine"}),
		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtb_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"circuit"}),
		external: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtb_external_calls_total",
			Help: "Calls to external dependencies by result",
		}, []string{"dependency", "result"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtb_run_duration_seconds",
			Help:    "Pipeline run duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),
		auditlogErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "rtb_auditlog_publish_errors_total",
			Help: "Decision records that failed to reach the audit log",
		}),
	}
}

// RecordDecision counts one symbol pass.
func (r *Recorder) RecordDecision(symbol, outcome, reason string) {
	r.decisions.WithLabelValues(symbol, outcome, reason).Inc()
}

// RecordAdmission counts a trade written to the ledger.
func (r *Recorder) RecordAdmission(symbol, side, strategy string) {
	r.admitted.WithLabelValues(symbol, side, strategy).Inc()
}

// RecordScores stores the latest regime and engine readings.
func (r *Recorder) RecordScores(symbol string, hurst, aexi, dream float64) {
	r.hurst.WithLabelValues(symbol).Set(hurst)
	r.composite.WithLabelValues(symbol, "aexi").Set(aexi)
	r.composite.WithLabelValues(symbol, "dream").Set(dream)
}

// RecordCircuitState maps CLOSED/HALF_OPEN/OPEN to 0/1/2.
func (r *Recorder) RecordCircuitState(name, state string) {
	v := 0.0
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	r.circuitState.WithLabelValues(name).Set(v)
}

// RecordExternalCall counts a dependency call result ("ok", "error", "open").
func (r *Recorder) RecordExternalCall(dependency, result string) {
	r.external.WithLabelValues(dependency, result).Inc()
}

// RecordRun observes a pipeline run duration in seconds.
func (r *Recorder) RecordRun(trigger string, seconds float64) {
	r.runDuration.WithLabelValues(trigger).Observe(seconds)
}

// RecordAuditlogError counts a failed audit log publish.
func (r *Recorder) RecordAuditlogError() {
	r.auditlogErrs.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
