package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpusforge_api_request_duration_seconds",
			Help:    "API request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "status"},
	)

	pagesConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusforge_pages_converted_total",
			Help: "Total number of PDF pages converted to markdown",
		},
		[]string{"status"}, // "success" / "error"
	)

	generationUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusforge_generation_units_total",
			Help: "Total number of (page, difficulty) generation units completed",
		},
		[]string{"status"},
	)

	candidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusforge_candidates_total",
			Help: "Generation candidates by validation outcome",
		},
		[]string{"outcome"}, // "accepted" / "incomplete"
	)

	pairsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpusforge_pairs_written_total",
			Help: "Total QA pairs written to output datasets",
		},
	)

	duplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpusforge_duplicates_dropped_total",
			Help: "Total QA pairs dropped as exact duplicates",
		},
	)

	qualityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpusforge_quality_rejections_total",
			Help: "Total QA pairs dropped by the quality judge",
		},
	)

	documentProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corpusforge_document_progress_percent",
			Help: "Generation progress of the document currently being processed",
		},
	)
)

// ObserveAPIRequest records one API call's duration and outcome.
func ObserveAPIRequest(model string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	apiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
}

// IncPageConverted counts one page conversion attempt.
func IncPageConverted(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pagesConverted.WithLabelValues(status).Inc()
}

// IncGenerationUnit counts one completed (page, difficulty) unit.
func IncGenerationUnit(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	generationUnits.WithLabelValues(status).Inc()
}

// IncCandidates counts validated candidates by outcome.
func IncCandidates(accepted, incomplete int) {
	if accepted > 0 {
		candidates.WithLabelValues("accepted").Add(float64(accepted))
	}
	if incomplete > 0 {
		candidates.WithLabelValues("incomplete").Add(float64(incomplete))
	}
}

// AddPairsWritten counts pairs persisted to a dataset.
func AddPairsWritten(n int) {
	pairsWritten.Add(float64(n))
}

// AddDuplicatesDropped counts pairs removed by deduplication.
func AddDuplicatesDropped(n int) {
	duplicatesDropped.Add(float64(n))
}

// AddQualityRejections counts pairs removed by the quality judge.
func AddQualityRejections(n int) {
	qualityRejections.Add(float64(n))
}

// SetDocumentProgress updates the current document's progress gauge.
func SetDocumentProgress(pct float64) {
	documentProgress.Set(pct)
}

// Serve exposes /metrics on addr. It returns immediately; the listener runs
// until the process exits. An empty addr disables serving while the
// collectors above keep accumulating.
func Serve(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Metrics server stopped", "error", err)
		}
	}()
}
