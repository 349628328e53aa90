package metrics

import "time"

// MetricsWrapper adapts Metrics to the narrow metric interfaces used by the
// features and ml packages, so neither imports Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Feature builder

func (w *MetricsWrapper) FeatureErrorsInc() {
	w.m.FeatureErrors.Inc()
}

func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureDuration.Observe(d.Seconds())
}

func (w *MetricsWrapper) FeatureSampleCount(n int) {
	w.m.FeatureBuilds.Inc()
	w.m.FeatureRows.Set(float64(n))
}

// Trainer

func (w *MetricsWrapper) TrainingRunsInc() {
	w.m.TrainingRuns.Inc()
}

func (w *MetricsWrapper) TrainingFailuresInc() {
	w.m.TrainingFailures.Inc()
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	w.m.TrainingDuration.Observe(v)
}

func (w *MetricsWrapper) CandidateMAESet(candidate string, mae float64) {
	w.m.CandidateMAE.WithLabelValues(candidate).Set(mae)
}

func (w *MetricsWrapper) DegradedCandidatesInc() {
	w.m.DegradedCandidates.Inc()
}

// Predictor

func (w *MetricsWrapper) PredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc() {
	w.m.PredictionFailures.Inc()
}

func (w *MetricsWrapper) PredictionLatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) LastForecastSet(v float64) {
	w.m.LastForecast.Set(v)
}

func (w *MetricsWrapper) ArtifactAgeSet(trainedAt time.Time) {
	w.m.UpdateArtifactAge(trainedAt, time.Now())
}
