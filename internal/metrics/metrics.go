// Package metrics provides Prometheus metrics collection for the revenue
// forecaster. It covers feature building, training runs and candidate scores,
// and predictions, exposed via the serve-metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	// Feature metrics
	FeatureBuilds   prometheus.Counter   // Successful feature builds
	FeatureErrors   prometheus.Counter   // Feature builds rejected by validation
	FeatureDuration prometheus.Histogram // Feature build duration
	FeatureRows     prometheus.Gauge     // Rows produced by the last feature build

	// Training metrics
	TrainingRuns       prometheus.Counter
	TrainingFailures   prometheus.Counter
	TrainingDuration   prometheus.Histogram
	CandidateMAE       *prometheus.GaugeVec // Test MAE per candidate, +Inf when degraded
	DegradedCandidates prometheus.Counter

	// Prediction metrics
	Predictions        prometheus.Counter
	PredictionFailures prometheus.Counter
	PredictionLatency  prometheus.Histogram
	LastForecast       prometheus.Gauge
	ArtifactAge        prometheus.Gauge // Seconds since the served artifact was trained
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		FeatureBuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_feature_builds_total",
			Help: "Total number of successful feature builds",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_feature_errors_total",
			Help: "Total number of feature builds rejected by validation",
		}),
		FeatureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_feature_duration_seconds",
			Help:    "Feature build duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		FeatureRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_feature_rows",
			Help: "Number of feature rows produced by the last build",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_training_runs_total",
			Help: "Total number of training runs",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_training_failures_total",
			Help: "Total number of failed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_training_duration_seconds",
			Help:    "Training run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		CandidateMAE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forecaster_candidate_mae",
			Help: "Test-split mean absolute error of each candidate in the last training run",
		}, []string{"candidate"}),
		DegradedCandidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_degraded_candidates_total",
			Help: "Total number of candidates skipped because their model family was unavailable",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_predictions_total",
			Help: "Total number of forecasts produced",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_prediction_failures_total",
			Help: "Total number of failed forecasts",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecaster_prediction_latency_seconds",
			Help:    "Prediction latency in seconds (features and model)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		LastForecast: factory.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_last_forecast",
			Help: "Most recent next-period revenue forecast",
		}),
		ArtifactAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_artifact_age_seconds",
			Help: "Age of the served artifact in seconds",
		}),
	}
}

// UpdateArtifactAge sets the artifact age from its training time.
func (m *Metrics) UpdateArtifactAge(trainedAt, now time.Time) {
	age := now.Sub(trainedAt).Seconds()
	if age < 0 {
		age = 0
	}
	m.ArtifactAge.Set(age)
}
