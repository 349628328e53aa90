package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"revenue-forecaster/internal/common"
	"revenue-forecaster/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offsetCandidate predicts lag_1 plus a fixed offset and records the size of
// every fit.
type offsetCandidate struct {
	id          string
	offset      float64
	unavailable bool
	err         error
	fits        []int
}

func (c *offsetCandidate) ID() string      { return c.id }
func (c *offsetCandidate) Available() bool { return !c.unavailable }

func (c *offsetCandidate) Fit(ctx context.Context, X [][]float64, y []float64, cols []string) (*Model, error) {
	c.fits = append(c.fits, len(X))
	if c.err != nil {
		return nil, c.err
	}
	anchor, err := anchorIndex(cols)
	if err != nil {
		return nil, err
	}
	leaf := &Tree{Feature: []int{-1}, Threshold: []float64{0}, Left: []int{-1}, Right: []int{-1}, Value: []float64{c.offset}}
	return &Model{Kind: common.CandidateEnsemble, Anchor: anchor, Trees: []*Tree{leaf}}, nil
}

func trainWith(t *testing.T, table features.Table, metrics MetricsInterface, candidates ...Candidate) (*TrainReport, error) {
	t.Helper()
	trainer := NewTrainer(candidates, TrainerOptions{
		SplitRatio: 0.8,
		Metrics:    metrics,
		Clock:      func() time.Time { return fixedTime },
		NewRunID:   func() string { return "run-1" },
	})
	return trainer.Train(context.Background(), table)
}

func TestTrain_ConstantHistorySelectsBaseline(t *testing.T) {
	artifact := trainOn(t, constantRevenue(12, 1000), testModelSettings())

	assert.Equal(t, common.CandidateBaseline, artifact.Selected)
	assert.Nil(t, artifact.Model)
	for _, id := range common.CandidateOrder() {
		assert.Equal(t, 0.0, artifact.MAE[id], id)
	}
	assert.Equal(t, common.FeatureColumns(), artifact.FeatureCols)
	assert.Equal(t, 5, artifact.TrainRows)
	assert.Equal(t, fixedTime, artifact.TrainedAt)
	assert.Equal(t, "run-1", artifact.RunID)
}

func TestTrain_LinearTrendBeatsBaseline(t *testing.T) {
	artifact := trainOn(t, linearRevenue(24, 1000, 100), testModelSettings())

	assert.InDelta(t, 100.0, artifact.MAE[common.CandidateBaseline], 1e-9)
	assert.LessOrEqual(t, artifact.MAE[common.CandidateEnsemble], 100.0)
	assert.LessOrEqual(t, artifact.MAE[common.CandidateBoosted], 100.0)
	assert.Equal(t, common.CandidateEnsemble, artifact.Selected)
	require.NotNil(t, artifact.Model)
	assert.Equal(t, common.CandidateEnsemble, artifact.Model.Kind)
	assert.Equal(t, 17, artifact.TrainRows)
}

func TestTrain_SelectedHasLowestMAE(t *testing.T) {
	artifact := trainOn(t, seasonalRevenue(48), testModelSettings())

	require.Len(t, artifact.MAE, 3)
	selected := artifact.MAE[artifact.Selected]
	for id, mae := range artifact.MAE {
		assert.LessOrEqual(t, selected, mae, "selected %s vs %s", artifact.Selected, id)
	}
	require.NoError(t, artifact.Validate())
}

func TestTrain_TiesResolveToEarlierCandidate(t *testing.T) {
	table := buildTable(t, linearRevenue(24, 1000, 100))

	first := &offsetCandidate{id: common.CandidateBoosted, offset: 250}
	second := &offsetCandidate{id: common.CandidateEnsemble, offset: 150}
	report, err := trainWith(t, table, nil, Baseline{}, first, second)
	require.NoError(t, err)

	artifact := report.Artifact
	assert.InDelta(t, 50.0, artifact.MAE[common.CandidateBoosted], 1e-9)
	assert.InDelta(t, 50.0, artifact.MAE[common.CandidateEnsemble], 1e-9)
	assert.Equal(t, common.CandidateBoosted, artifact.Selected)
}

func TestTrain_WinnerRefitOnFullTable(t *testing.T) {
	table := buildTable(t, linearRevenue(24, 1000, 100))

	winner := &offsetCandidate{id: common.CandidateEnsemble, offset: 200}
	loser := &offsetCandidate{id: common.CandidateBoosted, offset: 0}
	report, err := trainWith(t, table, nil, Baseline{}, winner, loser)
	require.NoError(t, err)

	assert.Equal(t, common.CandidateEnsemble, report.Artifact.Selected)
	assert.Equal(t, []int{13, 17}, winner.fits)
	assert.Equal(t, []int{13}, loser.fits)
}

func TestTrain_DisabledBoostedDegrades(t *testing.T) {
	settings := testModelSettings()
	settings.BoostedEnabled = false
	metrics := &MockMetrics{}

	report, err := newTestTrainer(settings, metrics).Train(context.Background(), buildTable(t, seasonalRevenue(36)))
	require.NoError(t, err)

	artifact := report.Artifact
	assert.True(t, math.IsInf(artifact.MAE[common.CandidateBoosted], 1))
	assert.NotEqual(t, common.CandidateBoosted, artifact.Selected)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, common.CandidateBoosted, report.Warnings[0].Candidate)
	assert.ErrorIs(t, report.Warnings[0], ErrCandidateUnavailable)
	assert.Equal(t, 1, metrics.degraded)
	assert.True(t, math.IsInf(metrics.candidateMAE[common.CandidateBoosted], 1))
}

func TestTrain_UnavailableFitDegrades(t *testing.T) {
	table := buildTable(t, linearRevenue(24, 1000, 100))
	broken := &offsetCandidate{id: common.CandidateEnsemble, err: fmt.Errorf("runtime missing: %w", ErrCandidateUnavailable)}

	report, err := trainWith(t, table, nil, Baseline{}, broken)
	require.NoError(t, err)

	assert.Equal(t, common.CandidateBaseline, report.Artifact.Selected)
	assert.True(t, math.IsInf(report.Artifact.MAE[common.CandidateEnsemble], 1))
	assert.Len(t, report.Warnings, 1)
}

func TestTrain_NoUsableCandidate(t *testing.T) {
	table := buildTable(t, linearRevenue(24, 1000, 100))

	_, err := trainWith(t, table, nil, &offsetCandidate{id: common.CandidateBoosted, unavailable: true})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestTrain_FitErrorIsFatal(t *testing.T) {
	table := buildTable(t, linearRevenue(24, 1000, 100))
	metrics := &MockMetrics{}

	report, err := trainWith(t, table, metrics, Baseline{}, &offsetCandidate{id: common.CandidateEnsemble, err: errors.New("boom")})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, metrics.trainingRuns)
	assert.Equal(t, 1, metrics.trainingFailures)
}

func TestTrain_TooFewRows(t *testing.T) {
	tests := []struct {
		name  string
		table features.Table
	}{
		{"empty", features.Table{}},
		{"single row", buildTable(t, linearRevenue(8, 1000, 10))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trainWith(t, tt.table, nil, DefaultCandidates(testModelSettings())...)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestTrain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestTrainer(testModelSettings(), nil).Train(ctx, buildTable(t, seasonalRevenue(36)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestTrain_Deterministic(t *testing.T) {
	revenues := seasonalRevenue(48)

	first := trainOn(t, revenues, testModelSettings())
	second := trainOn(t, revenues, testModelSettings())

	assert.Equal(t, first, second)
}

func TestTrain_SeedChangesEnsemble(t *testing.T) {
	table := buildTable(t, seasonalRevenue(48))
	cols := common.FeatureColumns()
	X, err := table.Matrix(cols)
	require.NoError(t, err)

	a, err := NewEnsemble(5, 0, 1, 1).Fit(context.Background(), X, table.Targets(), cols)
	require.NoError(t, err)
	b, err := NewEnsemble(5, 0, 1, 2).Fit(context.Background(), X, table.Targets(), cols)
	require.NoError(t, err)

	assert.NotEqual(t, a.Trees, b.Trees)
}

func TestTrain_RecordsMetrics(t *testing.T) {
	metrics := &MockMetrics{}

	_, err := newTestTrainer(testModelSettings(), metrics).Train(context.Background(), buildTable(t, linearRevenue(24, 1000, 100)))
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.trainingRuns)
	assert.Equal(t, 0, metrics.trainingFailures)
	assert.Len(t, metrics.trainingDurations, 1)
	assert.Len(t, metrics.candidateMAE, 3)
	assert.InDelta(t, 100.0, metrics.candidateMAE[common.CandidateBaseline], 1e-9)
}

func TestBoosted_SettledGradientKeepsOneTree(t *testing.T) {
	table := buildTable(t, constantRevenue(12, 1000))
	cols := common.FeatureColumns()
	X, err := table.Matrix(cols)
	require.NoError(t, err)

	model, err := NewBoosted(50, 3, 0.1, true).Fit(context.Background(), X, table.Targets(), cols)
	require.NoError(t, err)

	assert.Len(t, model.Trees, 1)
	assert.Equal(t, 0.0, model.Base)
	assert.Equal(t, 1000.0, model.Predict(X[0]))
}

func TestBoosted_DisabledFitFails(t *testing.T) {
	_, err := NewBoosted(10, 3, 0.1, false).Fit(context.Background(), [][]float64{{1}}, []float64{1}, []string{common.ColLag1})
	assert.ErrorIs(t, err, ErrCandidateUnavailable)
}

func TestMeanAbsoluteError(t *testing.T) {
	assert.Equal(t, 2.0, meanAbsoluteError([]float64{1, 2, 3}, []float64{3, 0, 5}))
}
