package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tree is a fitted CART regression tree stored as flat node arrays. Node 0
// is the root; a Feature of -1 marks a leaf. Children always have larger
// indices than their parent.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

type treeParams struct {
	maxDepth int // 0 means unlimited
	minLeaf  int
}

// Predict walks x down to a leaf: x[feature] <= threshold goes left.
func (t *Tree) Predict(x []float64) float64 {
	n := 0
	for t.Feature[n] >= 0 {
		if x[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

func (t *Tree) validate(features int) error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("tree node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if t.Feature[i] < 0 {
			if math.IsNaN(t.Value[i]) || math.IsInf(t.Value[i], 0) {
				return fmt.Errorf("leaf %d has non-finite value", i)
			}
			continue
		}
		if t.Feature[i] >= features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, t.Feature[i], features)
		}
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

// growTree fits a tree to y over the sample indices idx. Indices may repeat,
// which is how bootstrap samples are expressed.
func growTree(X [][]float64, y []float64, idx []int, p treeParams) *Tree {
	if p.minLeaf < 1 {
		p.minLeaf = 1
	}
	b := &treeBuilder{X: X, y: y, p: p, tree: &Tree{}}
	b.grow(idx, 0)
	return b.tree
}

type treeBuilder struct {
	X    [][]float64
	y    []float64
	p    treeParams
	tree *Tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	targets := b.targets(idx)
	node := b.addLeaf(stat.Mean(targets, nil))

	if len(idx) < 2*b.p.minLeaf || (b.p.maxDepth > 0 && depth >= b.p.maxDepth) || constant(targets) {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, targets)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.tree.Feature[node] = feature
	b.tree.Threshold[node] = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

func (b *treeBuilder) addLeaf(value float64) int {
	t := b.tree
	t.Feature = append(t.Feature, -1)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, -1)
	t.Right = append(t.Right, -1)
	t.Value = append(t.Value, value)
	return len(t.Feature) - 1
}

func (b *treeBuilder) targets(idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = b.y[i]
	}
	return out
}

// bestSplit scans every feature for the threshold minimizing the summed
// squared error of both sides. Ties keep the first split found, so the result
// depends only on feature order and sample order.
func (b *treeBuilder) bestSplit(idx []int, targets []float64) (int, float64, bool) {
	n := len(idx)
	parent := sse(floats.Sum(targets), sumSquares(targets), n)
	best := parent - 1e-9*math.Max(1, parent)
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := make([]int, n)
	for f := range b.X[idx[0]] {
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, c int) bool {
			return b.X[idx[order[a]]][f] < b.X[idx[order[c]]][f]
		})

		var totalSum, totalSq float64
		for _, k := range order {
			v := targets[k]
			totalSum += v
			totalSq += v * v
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			v := targets[order[k-1]]
			leftSum += v
			leftSq += v * v

			if k < b.p.minLeaf || n-k < b.p.minLeaf {
				continue
			}
			lo, hi := b.X[idx[order[k-1]]][f], b.X[idx[order[k]]][f]
			if lo == hi {
				continue
			}

			cost := sse(leftSum, leftSq, k) + sse(totalSum-leftSum, totalSq-leftSq, n-k)
			if cost < best {
				best = cost
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func sse(sum, sumSq float64, n int) float64 {
	v := sumSq - sum*sum/float64(n)
	if v < 0 {
		return 0
	}
	return v
}

func sumSquares(xs []float64) float64 {
	return floats.Dot(xs, xs)
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
