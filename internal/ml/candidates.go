package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"revenue-forecaster/internal/cfg"
	"revenue-forecaster/internal/common"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// ErrCandidateUnavailable marks a model family that cannot be used in this
// runtime. It degrades the candidate to an infinite MAE instead of failing
// training.
var ErrCandidateUnavailable = errors.New("candidate unavailable")

// Candidate is one registered model family. Availability is fixed when the
// candidate is constructed.
type Candidate interface {
	ID() string
	Available() bool
	// Fit trains on X (rows in cols order) and y. A nil model with a nil error
	// means the candidate forecasts by persistence and has no state.
	Fit(ctx context.Context, X [][]float64, y []float64, cols []string) (*Model, error)
}

// DefaultCandidates returns baseline, ensemble and boosted in evaluation order.
func DefaultCandidates(settings cfg.ModelSettings) []Candidate {
	return []Candidate{
		Baseline{},
		NewEnsemble(settings.EnsembleTrees, settings.EnsembleMaxDepth, settings.EnsembleMinLeaf, settings.Seed),
		NewBoosted(settings.BoostedRounds, settings.BoostedMaxDepth, settings.BoostedLearningRate, settings.BoostedEnabled),
	}
}

// Baseline is the persistence forecast. It has nothing to fit.
type Baseline struct{}

func (Baseline) ID() string      { return common.CandidateBaseline }
func (Baseline) Available() bool { return true }

func (Baseline) Fit(ctx context.Context, X [][]float64, y []float64, cols []string) (*Model, error) {
	return nil, ctx.Err()
}

// Ensemble bags regression trees, each grown on a bootstrap sample drawn from
// a generator seeded by the base seed and the tree index.
type Ensemble struct {
	trees  int
	params treeParams
	seed   uint64
}

func NewEnsemble(trees, maxDepth, minLeaf int, seed uint64) *Ensemble {
	if trees <= 0 {
		trees = common.DefaultEnsembleTrees
	}
	return &Ensemble{trees: trees, params: treeParams{maxDepth: maxDepth, minLeaf: minLeaf}, seed: seed}
}

func (e *Ensemble) ID() string      { return common.CandidateEnsemble }
func (e *Ensemble) Available() bool { return true }

func (e *Ensemble) Fit(ctx context.Context, X [][]float64, y []float64, cols []string) (*Model, error) {
	resid, anchor, err := residuals(X, y, cols)
	if err != nil {
		return nil, err
	}

	n := len(X)
	model := &Model{Kind: common.CandidateEnsemble, Anchor: anchor, Trees: make([]*Tree, 0, e.trees)}
	sample := make([]int, n)
	for t := 0; t < e.trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewPCG(e.seed, uint64(t)))
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		model.Trees = append(model.Trees, growTree(X, resid, sample, e.params))
	}
	return model, nil
}

// Boosted fits shallow trees to the remaining squared-loss gradient, starting
// from the mean residual.
type Boosted struct {
	rounds       int
	maxDepth     int
	learningRate float64
	available    bool
}

func NewBoosted(rounds, maxDepth int, learningRate float64, available bool) *Boosted {
	if !available {
		log.Warn().Str("candidate", common.CandidateBoosted).Msg("Boosted tree family disabled, candidate will be skipped")
	}
	return &Boosted{rounds: rounds, maxDepth: maxDepth, learningRate: learningRate, available: available}
}

func (b *Boosted) ID() string      { return common.CandidateBoosted }
func (b *Boosted) Available() bool { return b.available }

func (b *Boosted) Fit(ctx context.Context, X [][]float64, y []float64, cols []string) (*Model, error) {
	if !b.available {
		return nil, fmt.Errorf("%s: %w", b.ID(), ErrCandidateUnavailable)
	}
	resid, anchor, err := residuals(X, y, cols)
	if err != nil {
		return nil, err
	}

	n := len(X)
	base := stat.Mean(resid, nil)
	model := &Model{Kind: common.CandidateBoosted, Anchor: anchor, Base: base, LearningRate: b.learningRate}

	current := make([]float64, n)
	gradient := make([]float64, n)
	all := make([]int, n)
	for i := range current {
		current[i] = base
		all[i] = i
	}

	params := treeParams{maxDepth: b.maxDepth, minLeaf: 1}
	for round := 0; round < b.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		settled := true
		for i := range gradient {
			gradient[i] = resid[i] - current[i]
			if gradient[i] != 0 {
				settled = false
			}
		}
		if settled {
			break
		}

		tree := growTree(X, gradient, all, params)
		for i := range current {
			current[i] += b.learningRate * tree.Predict(X[i])
		}
		model.Trees = append(model.Trees, tree)
	}

	if len(model.Trees) == 0 {
		model.Trees = append(model.Trees, growTree(X, gradient, all, params))
	}
	return model, nil
}

// residuals returns y minus the anchor feature, along with the anchor index.
func residuals(X [][]float64, y []float64, cols []string) ([]float64, int, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, 0, fmt.Errorf("%w: %d feature rows for %d targets", ErrValidation, len(X), len(y))
	}
	anchor, err := anchorIndex(cols)
	if err != nil {
		return nil, 0, err
	}
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - X[i][anchor]
	}
	return resid, anchor, nil
}
