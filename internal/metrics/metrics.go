// Package metrics tracks conversion counters in a private Prometheus registry
// and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the conversion metrics.
type Recorder struct {
	registry    *prometheus.Registry
	conversions *prometheus.CounterVec
	duration    prometheus.Histogram
	running     prometheus.Gauge
}

// New returns a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guernika",
				Name:      "conversions_total",
				Help:      "Conversion submissions by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guernika",
				Name:      "conversion_duration_seconds",
				Help:      "Wall time of converter runs in seconds",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "guernika",
				Name:      "conversion_running",
				Help:      "1 while a conversion is running",
			},
		),
	}
	r.registry.MustRegister(r.conversions, r.duration, r.running)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Started marks a conversion as running.
func (r *Recorder) Started() {
	r.running.Set(1)
}

// Finished records a converter run that exited.
func (r *Recorder) Finished(outcome string, elapsed time.Duration) {
	r.running.Set(0)
	r.duration.Observe(elapsed.Seconds())
	r.Outcome(outcome)
}

// Outcome counts a submission that ended with outcome.
func (r *Recorder) Outcome(outcome string) {
	r.conversions.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the current metrics to path. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
