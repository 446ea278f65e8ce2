// Package metrics defines the prometheus collectors shared across the
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clientiq_build_info",
			Help: "Build information of the clientiq service",
		},
		[]string{"version", "commit", "date"},
	)

	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientiq_questions_total",
			Help: "Questions processed, by route decision",
		},
		[]string{"route"},
	)

	SkillDetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientiq_skill_detections_total",
			Help: "Skill classifications, by skill",
		},
		[]string{"skill"},
	)

	QueryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientiq_query_outcomes_total",
			Help: "Terminal pipeline outcomes, by result",
		},
		[]string{"result"}, // success | clarification | exhausted
	)

	QueryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clientiq_query_attempts",
			Help:    "Generation attempts per processed question",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	ValidationRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientiq_validation_rejections_total",
			Help: "Generated SQL statements rejected by the safety validator",
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientiq_result_cache_hits_total",
			Help: "Query outcomes served from the result cache",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientiq_result_cache_misses_total",
			Help: "Result cache lookups that missed",
		},
	)

	LLMCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clientiq_llm_call_duration_seconds",
			Help:    "Duration of LLM completion calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientiq_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientiq_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise the raw path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
