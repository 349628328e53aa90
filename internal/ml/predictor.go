package ml

import (
	"fmt"
	"time"

	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/features"
	"revenue-forecaster/internal/records"

	"github.com/rs/zerolog/log"
)

// Predictor applies a loaded artifact to the latest period of a record set.
// It only reads the artifact and is safe for concurrent use.
type Predictor struct {
	builder *features.Builder
	metrics MetricsInterface
}

func NewPredictor(builder *features.Builder, metrics MetricsInterface) *Predictor {
	if builder == nil {
		builder = features.NewBuilder(nil)
	}
	return &Predictor{builder: builder, metrics: metrics}
}

// PredictNext forecasts revenue for the period after the latest one in recs.
func (p *Predictor) PredictNext(artifact *Artifact, recs []records.RawRecord) (float64, error) {
	if p == nil {
		return 0, fmt.Errorf("predictor is nil")
	}

	start := time.Now()
	value, err := p.predict(artifact, recs)
	if p.metrics != nil {
		p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		if err != nil {
			p.metrics.PredictionFailuresInc()
		} else {
			p.metrics.PredictionsInc()
			p.metrics.LastForecastSet(value)
		}
	}
	return value, err
}

func (p *Predictor) predict(artifact *Artifact, recs []records.RawRecord) (float64, error) {
	if err := artifact.Validate(); err != nil {
		return 0, err
	}

	row, err := p.builder.Latest(recs)
	if err != nil {
		return 0, err
	}

	x, err := row.Vector(artifact.FeatureCols)
	if err != nil {
		return 0, err
	}

	var value float64
	if artifact.Selected == common.CandidateBaseline {
		value = forecast(nil, row, x)
	} else {
		value = forecast(artifact.Model, row, x)
	}
	if !finite(value) {
		return 0, fmt.Errorf("forecast for period after %s is not finite", row.Period)
	}

	log.Debug().
		Str("selected", artifact.Selected).
		Str("latest_period", row.Period.String()).
		Float64("forecast", value).
		Msg("Prediction successful")

	return value, nil
}
