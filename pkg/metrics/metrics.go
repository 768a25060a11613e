// Package metrics counts retries, poll iterations and command durations.
package metrics

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector implements retry.Observer and poll.Observer.
type Collector struct {
	registry        *prometheus.Registry
	retryAttempts   *prometheus.CounterVec
	pollIterations  *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

// NewCollector initializes a new metrics registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "arcdata_retry_attempts_total", Help: "Attempts made by the retry executor"},
			[]string{"operation", "outcome"},
		),
		pollIterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "arcdata_poll_iterations_total", Help: "Readiness poll iterations"},
			[]string{"resource", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arcdata_command_duration_seconds",
				Help:    "Command duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"command", "status"},
		),
	}
	registry.MustRegister(c.retryAttempts, c.pollIterations, c.commandDuration)
	return c
}

// ObserveAttempt records one executor attempt.
func (c *Collector) ObserveAttempt(operation, outcome string) {
	c.retryAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObservePoll records one poll iteration.
func (c *Collector) ObservePoll(resource, outcome string) {
	c.pollIterations.WithLabelValues(resource, outcome).Inc()
}

// ObserveCommand records how long a command ran.
func (c *Collector) ObserveCommand(command string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.commandDuration.WithLabelValues(command, status).Observe(duration.Seconds())
}

// Gatherer exposes the registry, mostly to tests.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return errors.Wrap(err, "encode metrics")
		}
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o644), "write %s", path)
}
