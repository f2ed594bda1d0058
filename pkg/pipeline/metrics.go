package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const prometheusMetricNamespace = "tenant_cost"

var (
	stagePrometheusMetricLabels = []string{"mode", "stage"}

	stageRunsTotalCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_runs_total",
			Help:      "Number of stage materializations attempted.",
		},
		stagePrometheusMetricLabels,
	)

	stageFailedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_runs_failed_total",
			Help:      "Number of stage materializations that failed after every retry.",
		},
		stagePrometheusMetricLabels,
	)

	stageRetriesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_retries_total",
			Help:      "Number of stage computations resubmitted after a failure or timeout.",
		},
		stagePrometheusMetricLabels,
	)

	stageDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration to materialize a stage.",
			Buckets:   []float64{1.0, 10.0, 60.0, 300.0, 600.0},
		},
		stagePrometheusMetricLabels,
	)

	joinRowsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "join_rows_total",
			Help:      "Rows seen by the cost join, by outcome.",
		},
		[]string{"outcome"},
	)

	overallocatedHoursCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "overallocated_hours_total",
			Help:      "Resource-hours whose tenant utilization summed past the whole resource.",
		},
	)

	lastSuccessfulRunGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time the last run finished successfully.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(stageRunsTotalCounter)
	prometheus.MustRegister(stageFailedCounter)
	prometheus.MustRegister(stageRetriesCounter)
	prometheus.MustRegister(stageDurationHistogram)
	prometheus.MustRegister(joinRowsCounter)
	prometheus.MustRegister(overallocatedHoursCounter)
	prometheus.MustRegister(lastSuccessfulRunGauge)
}
