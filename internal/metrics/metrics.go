// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	TransactionsAppended prometheus.Counter
	TransactionsDeleted  prometheus.Counter
	LoadFailures         prometheus.Counter
	DroppedRows          prometheus.Counter
	WriteConflicts       prometheus.Counter
	WriteFailures        prometheus.Counter
	MirrorRuns           *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. A nil reg means a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		TransactionsAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_transactions_appended_total",
			Help: "Total number of transactions appended",
		}),
		TransactionsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_transactions_deleted_total",
			Help: "Total number of transactions deleted",
		}),
		LoadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_load_failures_total",
			Help: "Table reads that failed and fell back to an empty ledger",
		}),
		DroppedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_dropped_rows_total",
			Help: "Rows skipped on load because of an unparsable date",
		}),
		WriteConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_write_conflicts_total",
			Help: "Writes rejected because the table changed since it was read",
		}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudledger_write_failures_total",
			Help: "Full-table writes that failed",
		}),
		MirrorRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudledger_mirror_runs_total",
			Help: "Sheets mirror attempts by outcome",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudledger_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
