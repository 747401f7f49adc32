package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsql_statements_total",
			Help: "Total number of executed statements by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsql_statement_duration_seconds",
			Help:    "Statement execution latency until the first batch is available.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"strategy"},
	)
	rowsReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsql_rows_read_total",
			Help: "Total number of rows advanced through result sets.",
		},
	)
	conversionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsql_conversion_errors_total",
			Help: "Total number of cell reads rejected by type conversion, by target type.",
		},
		[]string{"target"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsql_exports_total",
			Help: "Total number of result set exports by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		statementsTotal,
		statementDurationSeconds,
		rowsReadTotal,
		conversionErrorsTotal,
		exportsTotal,
	)
}

func ObserveStatement(strategy, outcome string, elapsed time.Duration) {
	statementsTotal.WithLabelValues(strategy, outcome).Inc()
	statementDurationSeconds.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func IncrementRowsRead() {
	rowsReadTotal.Inc()
}

func IncrementConversionError(target string) {
	conversionErrorsTotal.WithLabelValues(target).Inc()
}

func ObserveExport(format, outcome string) {
	exportsTotal.WithLabelValues(format, outcome).Inc()
}
