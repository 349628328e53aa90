package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/features"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// ErrValidation is returned when the feature table cannot support training.
var ErrValidation = common.ErrValidation

// ErrNoCandidate is returned when no candidate produced a finite test MAE.
var ErrNoCandidate = errors.New("no candidate produced a usable model")

// DegradedCandidateWarning records a candidate that was skipped because its
// model family is unavailable. Training continues without it.
type DegradedCandidateWarning struct {
	Candidate string
	Err       error
}

func (w DegradedCandidateWarning) Error() string {
	return fmt.Sprintf("candidate %s degraded: %v", w.Candidate, w.Err)
}

func (w DegradedCandidateWarning) Unwrap() error {
	return ErrCandidateUnavailable
}

// TrainReport is the outcome of one training run.
type TrainReport struct {
	Artifact *Artifact
	Warnings []DegradedCandidateWarning
	Duration time.Duration
}

type TrainerOptions struct {
	SplitRatio float64
	Metrics    MetricsInterface
	Clock      func() time.Time
	NewRunID   func() string
}

// Trainer evaluates candidates in registration order and keeps the first one
// with the lowest test MAE.
type Trainer struct {
	candidates []Candidate
	splitRatio float64
	metrics    MetricsInterface
	clock      func() time.Time
	newRunID   func() string
}

func NewTrainer(candidates []Candidate, opts TrainerOptions) *Trainer {
	t := &Trainer{
		candidates: candidates,
		splitRatio: opts.SplitRatio,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		newRunID:   opts.NewRunID,
	}
	if t.splitRatio <= 0 || t.splitRatio >= 1 {
		t.splitRatio = common.DefaultSplitRatio
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.newRunID == nil {
		t.newRunID = uuid.NewString
	}
	return t
}

// Train splits the table chronologically, scores every candidate on the test
// split, and refits the winner on the whole table. Nothing is persisted here;
// a cancelled context aborts before an artifact is returned.
func (t *Trainer) Train(ctx context.Context, table features.Table) (*TrainReport, error) {
	start := time.Now()
	report, err := t.train(ctx, table)
	if t.metrics != nil {
		t.metrics.TrainingRunsInc()
		t.metrics.TrainingDurationObserve(time.Since(start).Seconds())
		if err != nil {
			t.metrics.TrainingFailuresInc()
		}
	}
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (t *Trainer) train(ctx context.Context, table features.Table) (*TrainReport, error) {
	cols := common.FeatureColumns()
	n := table.Len()
	split := int(float64(n) * t.splitRatio)
	if split < 1 || split >= n {
		return nil, fmt.Errorf("%w: %d feature rows are too few for a train/test split at %.2f", ErrValidation, n, t.splitRatio)
	}

	train, test := table.Slice(0, split), table.Slice(split, n)
	Xtrain, err := train.Matrix(cols)
	if err != nil {
		return nil, err
	}
	ytrain := train.Targets()
	Xtest, err := test.Matrix(cols)
	if err != nil {
		return nil, err
	}
	ytest := test.Targets()

	report := &TrainReport{}
	mae := make(map[string]float64, len(t.candidates))
	var winner Candidate
	best := math.Inf(1)

	for _, c := range t.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !c.Available() {
			report.Warnings = append(report.Warnings, t.degrade(c, mae, ErrCandidateUnavailable))
			continue
		}

		model, err := c.Fit(ctx, Xtrain, ytrain, cols)
		if errors.Is(err, ErrCandidateUnavailable) {
			report.Warnings = append(report.Warnings, t.degrade(c, mae, err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", c.ID(), err)
		}

		preds := make([]float64, len(test.Rows))
		for i, row := range test.Rows {
			preds[i] = forecast(model, row, Xtest[i])
		}
		score := meanAbsoluteError(ytest, preds)
		mae[c.ID()] = score
		if t.metrics != nil {
			t.metrics.CandidateMAESet(c.ID(), score)
		}

		log.Debug().
			Str("candidate", c.ID()).
			Float64("mae", score).
			Int("train_rows", len(Xtrain)).
			Int("test_rows", len(Xtest)).
			Msg("Candidate evaluated")

		if score < best {
			best = score
			winner = c
		}
	}

	if winner == nil {
		return nil, ErrNoCandidate
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	Xall, err := table.Matrix(cols)
	if err != nil {
		return nil, err
	}
	final, err := winner.Fit(ctx, Xall, table.Targets(), cols)
	if err != nil {
		return nil, fmt.Errorf("refit %s on full history: %w", winner.ID(), err)
	}

	report.Artifact = &Artifact{
		Model:       final,
		FeatureCols: cols,
		TrainedAt:   t.clock().UTC(),
		MAE:         mae,
		Selected:    winner.ID(),
		RunID:       t.newRunID(),
		TrainRows:   n,
	}

	log.Info().
		Str("selected", winner.ID()).
		Interface("mae", mae).
		Int("rows", n).
		Int("split", split).
		Msg("Model selected")

	return report, nil
}

func (t *Trainer) degrade(c Candidate, mae map[string]float64, err error) DegradedCandidateWarning {
	mae[c.ID()] = math.Inf(1)
	if t.metrics != nil {
		t.metrics.DegradedCandidatesInc()
		t.metrics.CandidateMAESet(c.ID(), math.Inf(1))
	}
	log.Warn().Err(err).Str("candidate", c.ID()).Msg("Candidate unavailable, recording infinite MAE")
	return DegradedCandidateWarning{Candidate: c.ID(), Err: err}
}

func meanAbsoluteError(actual, predicted []float64) float64 {
	diffs := make([]float64, len(actual))
	for i := range actual {
		diffs[i] = math.Abs(predicted[i] - actual[i])
	}
	return stat.Mean(diffs, nil)
}
