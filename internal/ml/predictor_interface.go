// Package ml trains, selects and applies the next-period revenue forecaster.
//
// Training compares a persistence baseline with bagged and boosted regression
// tree candidates on a chronological hold-out split, refits the winner on the
// full history and packages it as an Artifact. Prediction rebuilds the latest
// feature row with the same feature code used in training and applies the
// artifact to it.
package ml

import "revenue-forecaster/internal/records"

// MetricsInterface defines metrics methods needed by the trainer and predictor
type MetricsInterface interface {
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	CandidateMAESet(candidate string, mae float64)
	DegradedCandidatesInc()
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	LastForecastSet(float64)
}

// PredictorInterface forecasts the period after the latest one in recs.
type PredictorInterface interface {
	PredictNext(artifact *Artifact, recs []records.RawRecord) (float64, error)
}
