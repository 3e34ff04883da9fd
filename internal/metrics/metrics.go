// Package metrics exposes Prometheus collectors for provider traffic.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medilens",
			Name:      "provider_calls_total",
			Help:      "Outbound provider calls by provider, operation and result",
		},
		[]string{"provider", "op", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medilens",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of single outbound provider calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medilens",
			Name:      "provider_retries_total",
			Help:      "Retries scheduled after a failed provider call",
		},
		[]string{"provider", "op"},
	)

	throttleWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "medilens",
			Name:      "throttle_wait_seconds",
			Help:      "Time spent waiting for the minimum call interval",
			Buckets:   []float64{0, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
	)

	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medilens",
			Name:      "usecase_outcomes_total",
			Help:      "Use case results by use case and outcome kind",
		},
		[]string{"usecase", "outcome"},
	)

	registerOnce sync.Once
)

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(providerCalls, providerLatency, retries, throttleWait, outcomes)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveCall records one outbound provider call.
func ObserveCall(provider, op, result string, dur time.Duration) {
	providerCalls.WithLabelValues(provider, op, result).Inc()
	providerLatency.WithLabelValues(provider, op).Observe(dur.Seconds())
}

func IncRetry(provider, op string) { retries.WithLabelValues(provider, op).Inc() }

func ObserveThrottleWait(d time.Duration) { throttleWait.Observe(d.Seconds()) }

// IncOutcome counts a use case result; outcome is "success" or a failure kind.
func IncOutcome(usecase, outcome string) { outcomes.WithLabelValues(usecase, outcome).Inc() }
