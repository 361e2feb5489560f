// Package metrics provides custom Prometheus metrics for SELD training runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second

// Phases used as the "phase" label.
const (
	PhaseTrain = "train"
	PhaseVal   = "val"
	PhaseTest  = "test"
)

// Score carries the five SELD values of one evaluation.
type Score struct {
	ER, F, LE, LR, SELD float64
}

// TrainingMetrics contains all Prometheus metrics related to the training loop.
// Every series is labeled with the run-unique split name.
type TrainingMetrics struct {
	LossGauge        *prometheus.GaugeVec
	ScoreGauge       *prometheus.GaugeVec
	BestEpochGauge   *prometheus.GaugeVec
	BestSELDGauge    *prometheus.GaugeVec
	EpochsTotal      *prometheus.CounterVec
	CheckpointSaves  *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	BatchesProcessed *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewTrainingMetrics creates and registers the training metrics on registry.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register training metrics: %w", err)
	}
	return m, nil
}

func (m *TrainingMetrics) initMetrics() {
	m.LossGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seld_loss",
			Help: "Most recent mean loss per split and phase.",
		},
		[]string{"split", "phase"},
	)
	m.ScoreGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seld_score",
			Help: "Most recent SELD sub-metric per split and phase (er, f, le, lr, seld).",
		},
		[]string{"split", "phase", "metric"},
	)
	m.BestEpochGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seld_best_epoch",
			Help: "Epoch index of the current checkpoint, -1 before the first improvement.",
		},
		[]string{"split"},
	)
	m.BestSELDGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seld_best_score",
			Help: "Validation SELD score of the current checkpoint.",
		},
		[]string{"split"},
	)
	m.EpochsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seld_epochs_total",
			Help: "Total number of completed epochs.",
		},
		[]string{"split"},
	)
	m.CheckpointSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seld_checkpoint_saves_total",
			Help: "Total number of checkpoint writes.",
		},
		[]string{"split", "status"},
	)
	m.PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seld_phase_duration_seconds",
			Help:    "Time spent in one training, validation or test pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
		},
		[]string{"phase"},
	)
	m.BatchesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seld_batches_total",
			Help: "Total number of batches processed.",
		},
		[]string{"phase"},
	)
}

// RecordLoss sets the mean loss of a pass.
func (m *TrainingMetrics) RecordLoss(split, phase string, loss float64) {
	m.LossGauge.WithLabelValues(split, phase).Set(loss)
}

// RecordScore sets the sub-metrics of an evaluation.
func (m *TrainingMetrics) RecordScore(split, phase string, s Score) {
	m.ScoreGauge.WithLabelValues(split, phase, "er").Set(s.ER)
	m.ScoreGauge.WithLabelValues(split, phase, "f").Set(s.F)
	m.ScoreGauge.WithLabelValues(split, phase, "le").Set(s.LE)
	m.ScoreGauge.WithLabelValues(split, phase, "lr").Set(s.LR)
	m.ScoreGauge.WithLabelValues(split, phase, "seld").Set(s.SELD)
}

// RecordBest tracks the epoch held by the checkpoint.
func (m *TrainingMetrics) RecordBest(split string, epoch int, seld float64) {
	m.BestEpochGauge.WithLabelValues(split).Set(float64(epoch))
	m.BestSELDGauge.WithLabelValues(split).Set(seld)
}

// RecordEpoch counts a completed epoch.
func (m *TrainingMetrics) RecordEpoch(split string) {
	m.EpochsTotal.WithLabelValues(split).Inc()
}

// RecordCheckpointSave counts a checkpoint write attempt.
func (m *TrainingMetrics) RecordCheckpointSave(split string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CheckpointSaves.WithLabelValues(split, status).Inc()
}

// RecordPhase observes the duration and batch count of one pass.
func (m *TrainingMetrics) RecordPhase(phase string, d time.Duration, batches int) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	m.BatchesProcessed.WithLabelValues(phase).Add(float64(batches))
}

// Describe implements the prometheus.Collector interface.
func (m *TrainingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.LossGauge.Describe(ch)
	m.ScoreGauge.Describe(ch)
	m.BestEpochGauge.Describe(ch)
	m.BestSELDGauge.Describe(ch)
	m.EpochsTotal.Describe(ch)
	m.CheckpointSaves.Describe(ch)
	m.PhaseDuration.Describe(ch)
	m.BatchesProcessed.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *TrainingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.LossGauge.Collect(ch)
	m.ScoreGauge.Collect(ch)
	m.BestEpochGauge.Collect(ch)
	m.BestSELDGauge.Collect(ch)
	m.EpochsTotal.Collect(ch)
	m.CheckpointSaves.Collect(ch)
	m.PhaseDuration.Collect(ch)
	m.BatchesProcessed.Collect(ch)
}
