package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// PROMETHEUS METRICS
// =============================================================================

// Metrics holds the service's collectors. Each instance owns its registry
// so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	Calculations      *prometheus.CounterVec
	BonusAmount       prometheus.Counter
	MetricsIngested   prometheus.Counter
	SummaryCache      *prometheus.CounterVec
	SettlementRuns    *prometheus.CounterVec
	SettlementLatency prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsorship_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sponsorship_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsorship_calculations_total",
			Help: "Bonus calculations produced, by bonus type and status",
		}, []string{"bonus_type", "status"}),
		BonusAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "sponsorship_bonus_amount_total",
			Help: "Sum of positive bonus amounts calculated",
		}),
		MetricsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "sponsorship_metrics_ingested_total",
			Help: "Performance measurements recorded",
		}),
		SummaryCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsorship_summary_cache_total",
			Help: "Campaign summary cache lookups by result (hit, miss)",
		}, []string{"result"}),
		SettlementRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sponsorship_settlement_runs_total",
			Help: "Automated deal settlements by outcome",
		}, []string{"status"}),
		SettlementLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sponsorship_settlement_duration_seconds",
			Help:    "Time to settle one deal",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern, so
// /api/deals/{id} is one series regardless of the ID.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
