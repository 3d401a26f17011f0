package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the workflow engines.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	sweepsTotal      prometheus.Counter
	proposalsCreated prometheus.Counter
	tripsMarkedSolo  prometheus.Counter
	tripsExpired     prometheus.Counter
	tokensRedeemed   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sweepsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batching_sweeps_total",
		Help: "Total batching sweeps run",
	})

	proposalsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batching_proposals_created_total",
		Help: "Total shared-vehicle proposal groups created",
	})

	tripsMarkedSolo := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batching_trips_marked_solo_total",
		Help: "Total trips evaluated and found ungroupable",
	})

	tripsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_trips_expired_total",
		Help: "Total pending trips flipped to expired by the sweep",
	})

	tokensRedeemed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "confirmation_tokens_redeemed_total",
		Help: "Total confirmation tokens successfully redeemed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sweepsTotal,
		proposalsCreated, tripsMarkedSolo, tripsExpired, tokensRedeemed, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		sweepsTotal:      sweepsTotal,
		proposalsCreated: proposalsCreated,
		tripsMarkedSolo:  tripsMarkedSolo,
		tripsExpired:     tripsExpired,
		tokensRedeemed:   tokensRedeemed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncSweeps counts one batching sweep run.
func (m *MetricsService) IncSweeps() {
	if m != nil {
		m.sweepsTotal.Inc()
	}
}

// AddProposalsCreated counts groups created by a sweep.
func (m *MetricsService) AddProposalsCreated(n int) {
	if m != nil && n > 0 {
		m.proposalsCreated.Add(float64(n))
	}
}

// AddTripsMarkedSolo counts trips found ungroupable.
func (m *MetricsService) AddTripsMarkedSolo(n int) {
	if m != nil && n > 0 {
		m.tripsMarkedSolo.Add(float64(n))
	}
}

// AddTripsExpired counts pending trips flipped to expired.
func (m *MetricsService) AddTripsExpired(n int) {
	if m != nil && n > 0 {
		m.tripsExpired.Add(float64(n))
	}
}

// IncTokensRedeemed counts a successful token redemption.
func (m *MetricsService) IncTokensRedeemed() {
	if m != nil {
		m.tokensRedeemed.Inc()
	}
}
