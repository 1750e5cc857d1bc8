package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	roadExtractor = "road_extractor"

	// Task metrics
	tasksDispatchedTotal = "tasks_dispatched_total"
	ledgerTransitions    = "ledger_transitions_total"
	cleanupFailures      = "result_cleanup_failures_total"

	// Vectorizer metrics
	vectorizedFeatures = "vectorized_features"

	// Labels
	stageLabel  = "stage"
	statusLabel = "status"
)

/**
* Metrics definition
**/
var tasksDispatchedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: roadExtractor,
		Name:      tasksDispatchedTotal,
		Help:      "number of tasks dispatched per pipeline stage",
	},
	[]string{stageLabel},
)

var ledgerTransitionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: roadExtractor,
		Name:      ledgerTransitions,
		Help:      "number of job status writes to the ledger",
	},
	[]string{stageLabel, statusLabel},
)

var cleanupFailuresMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: roadExtractor,
		Name:      cleanupFailures,
		Help:      "number of failed attempts to discard an ephemeral queue result",
	},
	[]string{stageLabel},
)

var vectorizedFeaturesMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: roadExtractor,
		Name:      vectorizedFeatures,
		Help:      "number of LineString features produced per vectorized mask",
		Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
	},
)

func IncreaseTasksDispatched(stage string) {
	tasksDispatchedTotalMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseLedgerTransitions(stage, status string) {
	ledgerTransitionsMetric.With(prometheus.Labels{stageLabel: stage, statusLabel: status}).Inc()
}

func IncreaseCleanupFailures(stage string) {
	cleanupFailuresMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func ObserveVectorizedFeatures(count int) {
	vectorizedFeaturesMetric.Observe(float64(count))
}

type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(tasksDispatchedTotalMetric)
	prometheus.MustRegister(ledgerTransitionsMetric)
	prometheus.MustRegister(cleanupFailuresMetric)
	prometheus.MustRegister(vectorizedFeaturesMetric)
}
