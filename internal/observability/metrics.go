// Package observability provides Prometheus metrics for monitoring SELD training runs.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors of a run on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	Training *metrics.TrainingMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	trainingMetrics, err := metrics.NewTrainingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create training metrics: %w", err)
	}

	return &Metrics{registry: registry, Training: trainingMetrics}, nil
}

// Registry exposes the underlying registry as a gatherer.
func (m *Metrics) Registry() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the current values in Prometheus text format,
// e.g. for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(fmt.Errorf("metrics: create dir for %s: %w", path, err), path)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.FileError(fmt.Errorf("metrics: write %s: %w", path, err), path)
	}
	return nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
