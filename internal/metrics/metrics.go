// Package metrics exposes Prometheus collectors for the crawl worker.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	workerJobsTotal             *prometheus.CounterVec
	workerFetchDurationSeconds  *prometheus.HistogramVec
	workerHeartbeatsTotal       *prometheus.CounterVec
	workerStaleJobsRescuedTotal prometheus.Counter
	workerStructuralScore       prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		workerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_worker_jobs_total",
				Help: "Total number of jobs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		workerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seo_worker_fetch_duration_seconds",
				Help:    "Histogram of document fetch latencies, labeled by status class.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"status_class"},
		)

		workerHeartbeatsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_worker_heartbeats_total",
				Help: "Total lease renewal attempts, labeled by result.",
			},
			[]string{"result"},
		)

		workerStaleJobsRescuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seo_worker_stale_jobs_rescued_total",
				Help: "Total jobs returned to the queue by the rescue pass.",
			},
		)

		workerStructuralScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seo_worker_structural_score",
				Help:    "Distribution of structural scores across analyzed pages.",
				Buckets: []float64{0, 10, 25, 40, 55, 70, 85, 100},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob counts one terminal job transition.
func ObserveJob(status string) {
	if workerJobsTotal == nil {
		return
	}
	workerJobsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one fetch latency sample grouped by status class.
func ObserveFetch(statusCode int, d time.Duration) {
	if workerFetchDurationSeconds == nil {
		return
	}
	workerFetchDurationSeconds.WithLabelValues(classifyStatus(statusCode)).Observe(d.Seconds())
}

// ObserveHeartbeat counts one lease renewal attempt.
func ObserveHeartbeat(ok bool) {
	if workerHeartbeatsTotal == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	workerHeartbeatsTotal.WithLabelValues(result).Inc()
}

// AddRescuedJobs counts jobs recovered by the rescue pass.
func AddRescuedJobs(n int) {
	if workerStaleJobsRescuedTotal == nil || n <= 0 {
		return
	}
	workerStaleJobsRescuedTotal.Add(float64(n))
}

// ObserveScore records one structural score sample.
func ObserveScore(score int) {
	if workerStructuralScore == nil {
		return
	}
	workerStructuralScore.Observe(float64(score))
}

func classifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "error"
	}
}
