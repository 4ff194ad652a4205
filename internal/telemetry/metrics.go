package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eduboard",
		Name:      "score_submissions_total",
		Help:      "Score submissions by outcome.",
	}, []string{"outcome"})

	providerCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eduboard",
		Name:      "assistant_provider_seconds",
		Help:      "Latency of LLM provider calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"ok"})
)

func CountSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveProviderCall(d time.Duration, ok bool) {
	label := "false"
	if ok {
		label = "true"
	}
	providerCalls.WithLabelValues(label).Observe(d.Seconds())
}
