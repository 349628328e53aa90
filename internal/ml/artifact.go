package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"revenue-forecaster/internal/common"
)

// ErrInvalidArtifact is returned when an artifact's contents are inconsistent.
var ErrInvalidArtifact = errors.New("invalid artifact")

// Artifact is everything needed to reproduce predictions from one training run.
type Artifact struct {
	Model       *Model // nil when the baseline is selected
	FeatureCols []string
	TrainedAt   time.Time
	MAE         map[string]float64
	Selected    string
	RunID       string
	TrainRows   int
}

// artifactJSON is the persisted layout. Infinite MAE values are stored as null
// because JSON has no representation for them.
type artifactJSON struct {
	ModelState  *Model              `json:"model_state"`
	FeatureCols []string            `json:"feature_cols"`
	TrainedAt   string              `json:"trained_at"`
	MAE         map[string]*float64 `json:"mae"`
	Selected    string              `json:"selected"`
	RunID       string              `json:"run_id,omitempty"`
	TrainRows   int                 `json:"train_rows,omitempty"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	mae := make(map[string]*float64, len(a.MAE))
	for id, v := range a.MAE {
		if math.IsInf(v, 1) {
			mae[id] = nil
			continue
		}
		if !finite(v) {
			return nil, fmt.Errorf("%w: MAE for %s is %v", ErrInvalidArtifact, id, v)
		}
		v := v
		mae[id] = &v
	}

	return json.Marshal(artifactJSON{
		ModelState:  a.Model,
		FeatureCols: a.FeatureCols,
		TrainedAt:   a.TrainedAt.UTC().Format(time.RFC3339Nano),
		MAE:         mae,
		Selected:    a.Selected,
		RunID:       a.RunID,
		TrainRows:   a.TrainRows,
	})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	trainedAt, err := time.Parse(time.RFC3339Nano, raw.TrainedAt)
	if err != nil {
		return fmt.Errorf("%w: trained_at: %v", ErrInvalidArtifact, err)
	}

	mae := make(map[string]float64, len(raw.MAE))
	for id, v := range raw.MAE {
		if v == nil {
			mae[id] = math.Inf(1)
		} else {
			mae[id] = *v
		}
	}

	*a = Artifact{
		Model:       raw.ModelState,
		FeatureCols: raw.FeatureCols,
		TrainedAt:   trainedAt,
		MAE:         mae,
		Selected:    raw.Selected,
		RunID:       raw.RunID,
		TrainRows:   raw.TrainRows,
	}
	return nil
}

// Validate checks that the artifact can be applied: the exact feature column
// set, a known selected candidate, and model state matching the selection.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrInvalidArtifact)
	}

	want := common.FeatureColumns()
	if len(a.FeatureCols) != len(want) {
		return fmt.Errorf("%w: %d feature columns, want %d", ErrInvalidArtifact, len(a.FeatureCols), len(want))
	}
	seen := make(map[string]bool, len(want))
	for _, c := range a.FeatureCols {
		seen[c] = true
	}
	for _, c := range want {
		if !seen[c] {
			return fmt.Errorf("%w: feature column %s missing", ErrInvalidArtifact, c)
		}
	}

	if !common.IsCandidate(a.Selected) {
		return fmt.Errorf("%w: unknown selected candidate %q", ErrInvalidArtifact, a.Selected)
	}
	for id := range a.MAE {
		if !common.IsCandidate(id) {
			return fmt.Errorf("%w: MAE for unknown candidate %q", ErrInvalidArtifact, id)
		}
	}

	if a.Selected == common.CandidateBaseline {
		return nil
	}
	if a.Model == nil {
		return fmt.Errorf("%w: %s selected without model state", ErrInvalidArtifact, a.Selected)
	}
	if a.Model.Kind != a.Selected {
		return fmt.Errorf("%w: model kind %s does not match selected %s", ErrInvalidArtifact, a.Model.Kind, a.Selected)
	}
	if err := a.Model.validate(len(a.FeatureCols)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return nil
}
