package ml

import (
	"fmt"
	"math"

	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/features"
)

// Model is the fitted state of a tree candidate. Trees learn the residual of
// the next period's revenue over the anchor feature (lag_1), which lets tree
// ensembles follow a trend past the range of revenues seen in training.
type Model struct {
	Kind         string  `json:"kind"`
	Anchor       int     `json:"anchor"`
	Base         float64 `json:"base,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Trees        []*Tree `json:"trees"`
}

// Predict returns the forecast for one feature vector in artifact column order.
func (m *Model) Predict(x []float64) float64 {
	var residual float64
	switch m.Kind {
	case common.CandidateBoosted:
		residual = m.Base
		for _, t := range m.Trees {
			residual += m.LearningRate * t.Predict(x)
		}
	default:
		for _, t := range m.Trees {
			residual += t.Predict(x)
		}
		residual /= float64(len(m.Trees))
	}
	return x[m.Anchor] + residual
}

func (m *Model) validate(features int) error {
	if m.Kind != common.CandidateEnsemble && m.Kind != common.CandidateBoosted {
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	if m.Anchor < 0 || m.Anchor >= features {
		return fmt.Errorf("anchor column %d out of range", m.Anchor)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	for i, t := range m.Trees {
		if t == nil {
			return fmt.Errorf("tree %d is missing", i)
		}
		if err := t.validate(features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// anchorIndex locates lag_1 among cols.
func anchorIndex(cols []string) (int, error) {
	for i, c := range cols {
		if c == common.ColLag1 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: feature columns lack %s", ErrValidation, common.ColLag1)
}

// forecast applies a candidate's fitted state to one row. A nil model is the
// persistence forecast: next period equals the row's own revenue, which is the
// lag_1 of the period being forecast. Training evaluation and serving both go
// through here.
func forecast(m *Model, row features.Row, x []float64) float64 {
	if m == nil {
		return row.Revenue
	}
	return m.Predict(x)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
