package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

type Metrics struct {
	registry  *prometheus.Registry
	Wait      *WaitMetrics
	Appliance *ApplianceMetrics
	Http      *HttpMetrics
}

type WaitMetrics struct {
	Polls    prometheus.Counter
	Outcomes *prometheus.CounterVec
	Duration prometheus.Histogram
}

type ApplianceMetrics struct {
	Steps *prometheus.CounterVec
}

type HttpMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry. A CLI process is short
// lived, so nothing is served; the registry is pushed to a Pushgateway instead.
func NewMetrics(buckets []float64) *Metrics {
	namespace := "cloudctl"

	wait_subsystem := "wait"
	appliance_subsystem := "appliance"
	http_subsystem := "http_client"

	if buckets == nil {
		buckets = prometheus.ExponentialBuckets(0.1, 1.5, 5)
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Wait: &WaitMetrics{
			Polls: factory.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Subsystem: wait_subsystem,
					Name:      "polls_total",
					Help:      "Number of state fetches performed while waiting.",
				},
			),
			Outcomes: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Subsystem: wait_subsystem,
					Name:      "outcomes_total",
					Help:      "Number of waits by outcome.",
				},
				[]string{"status"},
			),
			Duration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Subsystem: wait_subsystem,
					Name:      "duration_seconds",
					Help:      "Time spent waiting for a resource to reach a target state.",
					Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
				},
			),
		},
		Appliance: &ApplianceMetrics{
			Steps: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Subsystem: appliance_subsystem,
					Name:      "steps_total",
					Help:      "Number of appliance bring-up steps by result.",
				},
				[]string{"step", "result"},
			),
		},
		Http: &HttpMetrics{
			RequestsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Subsystem: http_subsystem,
					Name:      "requests_total",
					Help:      "Tracks the number of HTTP requests sent to the control plane.",
				}, []string{"method", "code"},
			),
			RequestDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Subsystem: http_subsystem,
					Name:      "request_duration_seconds",
					Help:      "Tracks the latencies of HTTP requests sent to the control plane.",
					Buckets:   buckets,
				},
				[]string{"method", "code"},
			),
		},
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveWait records a finished wait. status is the waiter outcome, or "error".
func (m *Metrics) ObserveWait(status string, calls int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Wait.Polls.Add(float64(calls))
	m.Wait.Outcomes.WithLabelValues(status).Inc()
	m.Wait.Duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStep(step string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailed
	}
	m.Appliance.Steps.WithLabelValues(step, result).Inc()
}

// Push sends every collected metric to the Pushgateway at url under job.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(m.registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
