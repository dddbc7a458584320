package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	analysisStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_started_total",
		Help: "Total analyses started",
	})
	analysisCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_completed_total",
		Help: "Total analyses completed",
	})
	analysisFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_failed_total",
		Help: "Total analyses failed, by error code",
	}, []string{"code"})
	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_ms",
		Help:    "Analysis duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
	})
	resultShapes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_result_shape_total",
		Help: "Upstream result payloads by detected shape",
	}, []string{"shape"})
	evaluationInconsistent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_evaluation_inconsistent_total",
		Help: "Evaluations reporting hiring READY while ats is not PASS",
	})
	usageBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_blocked_total",
		Help: "Analyses refused by usage limits, by reason",
	}, []string{"reason"})
	webhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook events by type and outcome",
	}, []string{"type", "outcome"})
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)

func init() {
	Registry.MustRegister(
		analysisStarted,
		analysisCompleted,
		analysisFailed,
		analysisDuration,
		resultShapes,
		evaluationInconsistent,
		usageBlocked,
		webhookEvents,
		breakerState,
	)
}

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStarted.Inc()
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompleted.Inc()
}

// IncAnalysisFailed increments the failed counter for code.
func IncAnalysisFailed(code string) {
	analysisFailed.WithLabelValues(code).Inc()
}

// ObserveAnalysisDuration records how long an analysis took.
func ObserveAnalysisDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	analysisDuration.Observe(float64(d) / float64(time.Millisecond))
}

// IncResultShape counts a detected upstream payload shape.
func IncResultShape(shape string) {
	resultShapes.WithLabelValues(shape).Inc()
}

// IncEvaluationInconsistent counts a READY/not-PASS evaluation.
func IncEvaluationInconsistent() {
	evaluationInconsistent.Inc()
}

// IncUsageBlocked counts a refused analysis.
func IncUsageBlocked(reason string) {
	usageBlocked.WithLabelValues(reason).Inc()
}

// IncWebhookEvent counts a processed webhook event.
func IncWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// SetBreakerState records the numeric state of a named breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
