package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes Prometheus metrics for the trader. Registered on the
// default registry and served by the report server's /metrics endpoint.
type Recorder struct {
	apiCalls      *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	breakerState  prometheus.Gauge
	rejectedCalls prometheus.Counter
	tradesOpened  prometheus.Counter
	tradesClosed  prometheus.Counter
	tickersScored *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	return &Recorder{
		apiCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivcrush_api_calls_total",
				Help: "API calls through the gateway by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		callDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ivcrush_api_call_duration_seconds",
				Help:    "Duration of gateway calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		breakerState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivcrush_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		rejectedCalls: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivcrush_breaker_rejected_total",
				Help: "Calls rejected by the open circuit breaker",
			},
		),
		tradesOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivcrush_trades_opened_total",
				Help: "Calendar spreads submitted",
			},
		),
		tradesClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivcrush_trades_closed_total",
				Help: "Positions closed",
			},
		),
		tickersScored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivcrush_tickers_scored_total",
				Help: "Tickers scored by verdict",
			},
			[]string{"verdict"},
		),
	}
}

// ObserveCall records one gateway call outcome.
func (r *Recorder) ObserveCall(operation, outcome string, seconds float64) {
	r.apiCalls.WithLabelValues(operation, outcome).Inc()
	r.callDuration.WithLabelValues(operation).Observe(seconds)
}

// SetBreakerState records the breaker state gauge.
func (r *Recorder) SetBreakerState(state int) {
	r.breakerState.Set(float64(state))
}

// RecordRejected records a call rejected without a network attempt.
func (r *Recorder) RecordRejected() {
	r.rejectedCalls.Inc()
}

// RecordTradeOpened records a submitted calendar spread.
func (r *Recorder) RecordTradeOpened() {
	r.tradesOpened.Inc()
}

// RecordTradeClosed records a closed position.
func (r *Recorder) RecordTradeClosed() {
	r.tradesClosed.Inc()
}

// RecordVerdict records a scored ticker by verdict.
func (r *Recorder) RecordVerdict(verdict string) {
	r.tickersScored.WithLabelValues(verdict).Inc()
}
