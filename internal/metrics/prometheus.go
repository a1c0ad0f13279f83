// Package metrics records verifier authentication metrics in Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives verifier metrics.
type Recorder interface {
	// ObserveAttempt records one authentication operation and its outcome.
	ObserveAttempt(action, outcome string, duration time.Duration)
	// IncLockout counts an account lockout.
	IncLockout()
	// IncThrottle counts a request refused by the rate limit.
	IncThrottle(action string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveAttempt(string, string, time.Duration) {}
func (Nop) IncLockout()                                  {}
func (Nop) IncThrottle(string)                           {}

// PrometheusRecorder implements Recorder on its own registry, so several
// recorders can coexist in one process.
type PrometheusRecorder struct {
	registry        *prometheus.Registry
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	lockoutsTotal   prometheus.Counter
	throttleTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with process and Go collectors
// registered next to the auth metrics.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternlock_auth_attempts_total",
				Help: "Total number of authentication operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternlock_auth_duration_seconds",
				Help:    "Duration of authentication operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		lockoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "patternlock_lockouts_total",
				Help: "Total number of accounts locked after repeated failures",
			},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternlock_throttle_total",
				Help: "Total number of requests refused by the rate limit",
			},
			[]string{"action"},
		),
	}
}

// ObserveAttempt implements Recorder.
func (p *PrometheusRecorder) ObserveAttempt(action, outcome string, duration time.Duration) {
	p.attemptsTotal.WithLabelValues(action, outcome).Inc()
	p.attemptDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// IncLockout implements Recorder.
func (p *PrometheusRecorder) IncLockout() {
	p.lockoutsTotal.Inc()
}

// IncThrottle implements Recorder.
func (p *PrometheusRecorder) IncThrottle(action string) {
	p.throttleTotal.WithLabelValues(action).Inc()
}

// Registry returns the registry holding the recorder's collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
