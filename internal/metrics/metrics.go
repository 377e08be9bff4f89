// Package metrics exports hypervisor call outcomes to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "virtdriver"

// Observer records retry policy attempts and calls. It satisfies
// retry.Observer.
type Observer struct {
	attempts *prometheus.CounterVec
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewObserver creates an Observer and registers its collectors on reg.
// Collectors already registered on reg are reused.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hypervisor",
			Name:      "attempts_total",
			Help:      "Hypervisor call attempts by operation and outcome class.",
		}, []string{"op", "class"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hypervisor",
			Name:      "calls_total",
			Help:      "Retried hypervisor calls by operation and final result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "hypervisor",
			Name:      "call_duration_seconds",
			Help:      "Wall clock time of retried hypervisor calls, including backoff.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"op"}),
	}

	var err error
	if o.attempts, err = register(reg, o.attempts); err != nil {
		return nil, err
	}
	if o.calls, err = register(reg, o.calls); err != nil {
		return nil, err
	}
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveAttempt counts one attempt of op. outcome is "success" or the
// failure class.
func (o *Observer) ObserveAttempt(op, outcome string) {
	o.attempts.WithLabelValues(op, outcome).Inc()
}

// ObserveCall records the final result of op and its duration.
func (o *Observer) ObserveCall(op, result string, elapsed time.Duration) {
	o.calls.WithLabelValues(op, result).Inc()
	o.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing g at path on addr.
func NewServer(addr, path string, g prometheus.Gatherer) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
