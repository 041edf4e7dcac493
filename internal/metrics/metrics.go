package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mchatbot.io/support-backend/internal/analysis"
	"mchatbot.io/support-backend/internal/cache"
	"mchatbot.io/support-backend/internal/ratelimit"
	"mchatbot.io/support-backend/internal/response"
)

const namespace = "mchatbot"

// Metrics holds the Prometheus collectors for the backend. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	Classifications    *prometheus.CounterVec
	ResponseTiers      *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	RequestCounter     *prometheus.CounterVec
	LatencyHistogram   *prometheus.HistogramVec
	registry           *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Risk classifications by result source and cache hit.",
			},
			[]string{"source", "cached"},
		),
		ResponseTiers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "response_tiers_total",
				Help:      "Replies by response tier.",
			},
			[]string{"tier"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter decisions by endpoint, action and outcome.",
			},
			[]string{"endpoint", "action", "allowed"},
		),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.Classifications,
		m.ResponseTiers,
		m.RateLimitDecisions,
		m.RequestCounter,
		m.LatencyHistogram,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveClassification matches analysis.WithObserver.
func (m *Metrics) ObserveClassification(r analysis.Result, cached bool) {
	m.Classifications.WithLabelValues(string(r.Source), strconv.FormatBool(cached)).Inc()
}

// ObserveTier matches core.WithReplyObserver.
func (m *Metrics) ObserveTier(t response.Tier) {
	m.ResponseTiers.WithLabelValues(t.String()).Inc()
}

// ObserveRateLimit matches ratelimit.WithObserver.
func (m *Metrics) ObserveRateLimit(k ratelimit.Key, d ratelimit.Decision) {
	m.RateLimitDecisions.WithLabelValues(k.Endpoint, k.Action, strconv.FormatBool(d.Allowed)).Inc()
}

// RegisterCache exports size and counters of a cache under the label
// cache=name. stats is read at scrape time.
func (m *Metrics) RegisterCache(name string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache": name}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entries", Help: "Live cache entries.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Size) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Cache hits.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Cache misses.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_evictions_total", Help: "Entries evicted for capacity or expiry.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Evictions) }),
	)
}

// Instrument records request count and latency per chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.LatencyHistogram.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

