package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_http_requests_total",
		Help: "Total number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	RepositoryQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_repository_queries_total",
		Help: "Total number of repository queries by operation and outcome",
	}, []string{"operation", "outcome"})
	RepositoryQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_repository_query_duration_seconds",
		Help:    "Repository query duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RepositoryQueriesTotal)
	prometheus.MustRegister(RepositoryQueryDuration)
}

// Outcome labels of RepositoryQueriesTotal.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// ObserveQuery records one repository call started at begin.
func ObserveQuery(operation string, begin time.Time, outcome string) {
	RepositoryQueriesTotal.WithLabelValues(operation, outcome).Inc()
	RepositoryQueryDuration.WithLabelValues(operation).Observe(time.Since(begin).Seconds())
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
