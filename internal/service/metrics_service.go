package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the domain counters the
// planning dashboards read.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	binomesFormed       prometheus.Counter
	pairingRejections   *prometheus.CounterVec
	scheduleConflicts   prometheus.Counter
	exportsProcessed    *prometheus.CounterVec
	planningCacheLookup *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
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

	binomesFormed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "binomes_formed_total",
		Help: "Binomes committed, paired and solo",
	})

	pairingRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairing_rejections_total",
		Help: "Pairing operations refused, by failure code",
	}, []string{"code"})

	scheduleConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "soutenance_conflicts_total",
		Help: "Scheduling attempts refused by the conflict validator",
	})

	exportsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_exports_total",
		Help: "Planning export jobs processed, by outcome",
	}, []string{"outcome"})

	planningCacheLookup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_cache_lookups_total",
		Help: "Planning cache lookups, by result",
	}, []string{"result"})

	registry.MustRegister(requestDuration, requestTotal, binomesFormed, pairingRejections, scheduleConflicts, exportsProcessed, planningCacheLookup)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		binomesFormed:       binomesFormed,
		pairingRejections:   pairingRejections,
		scheduleConflicts:   scheduleConflicts,
		exportsProcessed:    exportsProcessed,
		planningCacheLookup: planningCacheLookup,
	}
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one handled request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// BinomeFormed counts a committed binome.
func (s *MetricsService) BinomeFormed() {
	s.binomesFormed.Inc()
}

// PairingRejected counts a refused pairing operation.
func (s *MetricsService) PairingRejected(code string) {
	s.pairingRejections.WithLabelValues(code).Inc()
}

// ScheduleConflict counts a validator refusal.
func (s *MetricsService) ScheduleConflict() {
	s.scheduleConflicts.Inc()
}

// ExportProcessed counts a finished or failed export job.
func (s *MetricsService) ExportProcessed(outcome string) {
	s.exportsProcessed.WithLabelValues(outcome).Inc()
}

// PlanningCacheLookup counts a cache hit or miss.
func (s *MetricsService) PlanningCacheLookup(result string) {
	s.planningCacheLookup.WithLabelValues(result).Inc()
}
