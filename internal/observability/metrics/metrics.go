package metrics

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "load_analytics_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	uploadRequests *prometheus.CounterVec
	uploadLatency  *prometheus.HistogramVec
	discardedRows  *prometheus.CounterVec

	analysisTotal   *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec

	externalCalls   *prometheus.CounterVec
	externalLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	activeSessions prometheus.Gauge
)

// Init registers service metrics and, when db is set, dataset gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		uploadRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upload_requests_total",
				Help: "Total dataset uploads by format and result",
			},
			[]string{"format", "result"},
		)
		uploadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upload_latency_seconds",
				Help:    "Dataset upload latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		discardedRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "discarded_rows_total",
				Help: "Rows dropped during normalization by reason",
			},
			[]string{"reason"},
		)

		analysisTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_total",
				Help: "Total analysis steps by step and result",
			},
			[]string{"step", "result"},
		)
		analysisLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analysis_latency_seconds",
				Help:    "Analysis step latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		)

		externalCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "external_calls_total",
				Help: "Total external calls by target and result",
			},
			[]string{"target", "result"},
		)
		externalLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "external_latency_seconds",
				Help:    "External call latency in seconds, retries included",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"target"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		activeSessions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_sessions",
				Help: "Analysis sessions currently held in memory",
			},
		)

		prometheus.MustRegister(
			uploadRequests,
			uploadLatency,
			discardedRows,
			analysisTotal,
			analysisLatency,
			externalCalls,
			externalLatency,
			exportTotal,
			exportLatency,
			activeSessions,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	datasets := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "datasets_stored",
			Help: "Datasets persisted in the database",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			var count int64
			if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&count); err != nil {
				if logger != nil {
					logger.Printf("metrics datasets gauge error: %v", err)
				}
				return 0
			}
			return float64(count)
		},
	)
	prometheus.MustRegister(datasets)
}

func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveUpload records an upload by format and outcome.
func ObserveUpload(format string, err error, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	result := resultOf(err)
	if uploadRequests != nil {
		uploadRequests.WithLabelValues(format, result).Inc()
	}
	if uploadLatency != nil {
		uploadLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddDiscardedRows counts rows dropped for a reason.
func AddDiscardedRows(reason string, count int) {
	if count <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	if discardedRows != nil {
		discardedRows.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveAnalysis records one analysis step.
func ObserveAnalysis(step string, err error, duration time.Duration) {
	if step == "" {
		step = "unknown"
	}
	if analysisTotal != nil {
		analysisTotal.WithLabelValues(step, resultOf(err)).Inc()
	}
	if analysisLatency != nil {
		analysisLatency.WithLabelValues(step).Observe(duration.Seconds())
	}
}

// ObserveExternal records a call to the grid API or the LLM endpoint.
func ObserveExternal(target string, err error, duration time.Duration) {
	if target == "" {
		target = "unknown"
	}
	if externalCalls != nil {
		externalCalls.WithLabelValues(target, resultOf(err)).Inc()
	}
	if externalLatency != nil {
		externalLatency.WithLabelValues(target).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format string, err error, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, resultOf(err)).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// SetActiveSessions sets the in-memory session gauge.
func SetActiveSessions(count int) {
	if activeSessions != nil {
		activeSessions.Set(float64(count))
	}
}

