// Package metrics holds the prometheus collectors of the analysis core.
//
// Registers:
//
//	competitive_cache_requests_total{result}
//	competitive_ratelimit_decisions_total{tier,outcome}
//	competitive_narrative_total{source}
//	competitive_alerts_total{rule,severity}
//	competitive_analysis_duration_seconds
//
// Recording helpers are no-ops until Init has run.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "competitive"

// Cache results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheStale    = "stale"
	CacheBypass   = "bypass"
	CacheError    = "error"
	CacheCoalesce = "coalesced"
)

var (
	once sync.Once

	cacheRequests     *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	narratives        *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
)

// Init creates and registers the collectors. Subsequent calls are no-ops.
// A nil registerer uses the prometheus default registry.
func Init(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result",
		}, []string{"result"})

		rateLimitDecision = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by tier and outcome",
		}, []string{"tier", "outcome"})

		narratives = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_total",
			Help:      "Assembled reports by narrative source",
		}, []string{"source"})

		alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Newly emitted anomaly alerts",
		}, []string{"rule", "severity"})

		analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a group analysis computation",
			Buckets:   prometheus.DefBuckets,
		})

		reg.MustRegister(cacheRequests, rateLimitDecision, narratives, alerts, analysisDuration)
		_ = reg.Register(collectors.NewGoCollector())
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CacheRequest counts one cache lookup outcome.
func CacheRequest(result string) {
	if cacheRequests != nil {
		cacheRequests.WithLabelValues(result).Inc()
	}
}

// RateLimitDecision counts one limiter decision.
func RateLimitDecision(tier, outcome string) {
	if rateLimitDecision != nil {
		rateLimitDecision.WithLabelValues(tier, outcome).Inc()
	}
}

// Narrative counts one assembled report by its narrative source.
func Narrative(source string) {
	if narratives != nil {
		narratives.WithLabelValues(source).Inc()
	}
}

// Alert counts one newly persisted alert.
func Alert(rule, severity string) {
	if alerts != nil {
		alerts.WithLabelValues(rule, severity).Inc()
	}
}

// ObserveAnalysis records how long an analysis took.
func ObserveAnalysis(d time.Duration) {
	if analysisDuration != nil {
		analysisDuration.Observe(d.Seconds())
	}
}
