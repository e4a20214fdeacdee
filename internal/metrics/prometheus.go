package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports run-level counters to Prometheus. It is safe for
// concurrent use by parallel runs.
type Collector struct {
	runs     *prometheus.CounterVec
	steps    prometheus.Counter
	duration prometheus.Histogram
	drift    prometheus.Gauge

	mu       sync.Mutex
	maxDrift float64
}

// NewCollector registers the run metrics with reg (the default registerer
// when nil) under namespace ("reaksim" when empty).
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "reaksim"
	}

	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished kinetic runs by result (ok, failed, cancelled).",
		}, []string{"result"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Accepted kinetic steps over all runs.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of kinetic runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "element_drift_max",
			Help:      "Largest relative element drift seen in any finished run.",
		}),
	}
	reg.MustRegister(c.runs, c.steps, c.duration, c.drift)
	return c
}

// ObserveRun records one finished run.
func (c *Collector) ObserveRun(steps int, maxDrift float64, elapsed time.Duration, err error) {
	result := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	case err != nil:
		result = "failed"
	}
	c.runs.WithLabelValues(result).Inc()
	c.steps.Add(float64(steps))
	c.duration.Observe(elapsed.Seconds())
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if maxDrift > c.maxDrift {
		c.maxDrift = maxDrift
		c.drift.Set(maxDrift)
	}
}
