package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rebuildsTotal   *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	ledgerEntries   prometheus.Gauge
	ledgerParties   prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facilitydesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facilitydesk_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	rebuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facilitydesk_ledger_rebuilds_total",
		Help: "Ledger rebuilds by result.",
	}, []string{"result"})
	rebuildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "facilitydesk_ledger_rebuild_duration_seconds",
		Help:    "Time spent normalizing, sorting and classifying the ledger.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	})
	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "facilitydesk_ledger_entries",
		Help: "Entries in the published ledger snapshot.",
	})
	parties := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "facilitydesk_ledger_parties",
		Help: "Parties in the published ledger snapshot.",
	})
	registry.MustRegister(requests, duration, rebuilds, rebuildDuration, entries, parties)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		rebuildsTotal:   rebuilds,
		rebuildDuration: rebuildDuration,
		ledgerEntries:   entries,
		ledgerParties:   parties,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRebuild records one ledger rebuild. Gauges only move on success.
func (m *Metrics) ObserveRebuild(elapsed time.Duration, entries, parties int, err error) {
	if m == nil {
		return
	}
	m.rebuildDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.rebuildsTotal.WithLabelValues("failure").Inc()
		return
	}
	m.rebuildsTotal.WithLabelValues("success").Inc()
	m.ledgerEntries.Set(float64(entries))
	m.ledgerParties.Set(float64(parties))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
