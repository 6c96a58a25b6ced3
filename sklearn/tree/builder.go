package tree

import (
	"math"
	"math/rand/v2"
	"sort"
)

const (
	// impurity at or below this is treated as a pure node
	minImpurity = 2.220446049250313e-16
	// consecutive feature values closer than this are not split between
	featureThreshold = 1e-7
)

// Params configures tree growth.
type Params struct {
	Criterion           string
	MaxDepth            int // 0 means unlimited
	MinSamplesSplit     int
	MinSamplesLeaf      int
	MaxFeatures         int // features examined per split, 0 means all
	MinImpurityDecrease float64
}

type split struct {
	feature     int
	threshold   float64
	improvement float64
}

type builder struct {
	p      Params
	X      [][]float64
	y      []float64
	rng    *rand.Rand
	nTotal float64
	nodes  []Node
	depth  int
}

// Build grows a tree on the rows of X and y selected by idx. idx may contain
// repeated indices (bootstrap samples). rng drives feature sub-sampling and
// may be nil when every feature is examined.
func Build(X [][]float64, y []float64, idx []int, p Params, rng *rand.Rand) *Tree {
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > nFeatures {
		p.MaxFeatures = nFeatures
	}

	b := &builder{p: p, X: X, y: y, rng: rng, nTotal: float64(len(idx))}
	value, impurity := nodeStats(p.Criterion, y, idx)
	b.grow(append([]int(nil), idx...), 0, value, impurity)

	return &Tree{Nodes: b.nodes, NFeatures: nFeatures, MaxDepth: b.depth}
}

func (b *builder) grow(idx []int, depth int, value, impurity float64) int {
	nodeID := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  Leaf,
		Left:     Leaf,
		Right:    Leaf,
		Value:    value,
		Impurity: impurity,
		NSamples: len(idx),
		Depth:    depth,
	})
	if depth > b.depth {
		b.depth = depth
	}

	n := len(idx)
	if (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) ||
		n < b.p.MinSamplesSplit ||
		n < 2*b.p.MinSamplesLeaf ||
		impurity <= minImpurity {
		return nodeID
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return nodeID
	}

	left, right := b.partition(idx, best)
	lv, li := nodeStats(b.p.Criterion, b.y, left)
	rv, ri := nodeStats(b.p.Criterion, b.y, right)

	nt := float64(n)
	decrease := nt / b.nTotal * (impurity - float64(len(left))/nt*li - float64(len(right))/nt*ri)
	if decrease < b.p.MinImpurityDecrease {
		return nodeID
	}

	l := b.grow(left, depth+1, lv, li)
	r := b.grow(right, depth+1, rv, ri)

	node := &b.nodes[nodeID]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return nodeID
}

func (b *builder) partition(idx []int, s split) (left, right []int) {
	for _, k := range idx {
		if b.X[k][s.feature] <= s.threshold {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	return left, right
}

// featureOrder returns the order in which features are examined. With
// feature sub-sampling the order is a random permutation and the search
// stops after MaxFeatures non-constant features.
func (b *builder) featureOrder(nFeatures int) []int {
	if b.p.MaxFeatures >= nFeatures || b.rng == nil {
		order := make([]int, nFeatures)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return b.rng.Perm(nFeatures)
}

type sample struct {
	x float64
	y float64
}

func (b *builder) bestSplit(idx []int) (split, bool) {
	nFeatures := len(b.X[0])
	best := split{improvement: math.Inf(-1)}
	found := false
	visited := 0

	samples := make([]sample, len(idx))
	for _, f := range b.featureOrder(nFeatures) {
		if visited >= b.p.MaxFeatures {
			break
		}
		for i, k := range idx {
			samples[i] = sample{x: b.X[k][f], y: b.y[k]}
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].x < samples[j].x })
		if samples[len(samples)-1].x <= samples[0].x+featureThreshold {
			continue // constant in this node
		}
		visited++

		var s split
		var ok bool
		if b.p.Criterion == AbsoluteError {
			s, ok = b.scanAbsolute(samples)
		} else {
			s, ok = b.scanSums(samples)
		}
		if ok && s.improvement > best.improvement {
			s.feature = f
			best = s
			found = true
		}
	}
	return best, found
}

func threshold(a, b float64) float64 {
	t := (a + b) / 2
	if t == b || math.IsInf(t, 0) || math.IsNaN(t) {
		return a
	}
	return t
}

// scanSums evaluates every split position with running sums.
func (b *builder) scanSums(samples []sample) (split, bool) {
	n := len(samples)
	var total float64
	for _, s := range samples {
		total += s.y
	}

	best := split{improvement: math.Inf(-1)}
	found := false
	var sumL float64
	for i := 0; i < n-1; i++ {
		sumL += samples[i].y
		if samples[i+1].x <= samples[i].x+featureThreshold {
			continue
		}
		nL := i + 1
		nR := n - nL
		if nL < b.p.MinSamplesLeaf || nR < b.p.MinSamplesLeaf {
			continue
		}
		imp := proxyImprovement(b.p.Criterion, sumL, float64(nL), total-sumL, float64(nR))
		if imp > best.improvement {
			best.improvement = imp
			best.threshold = threshold(samples[i].x, samples[i+1].x)
			found = true
		}
	}
	return best, found
}

// scanAbsolute evaluates split positions by the total absolute deviation of
// each side around its median.
func (b *builder) scanAbsolute(samples []sample) (split, bool) {
	n := len(samples)
	right := make([]float64, n)
	for i, s := range samples {
		right[i] = s.y
	}
	sort.Float64s(right)
	left := make([]float64, 0, n)

	best := split{improvement: math.Inf(-1)}
	found := false
	for i := 0; i < n-1; i++ {
		v := samples[i].y
		left = insertSorted(left, v)
		right = removeSorted(right, v)
		if samples[i+1].x <= samples[i].x+featureThreshold {
			continue
		}
		if len(left) < b.p.MinSamplesLeaf || len(right) < b.p.MinSamplesLeaf {
			continue
		}
		imp := -(absDeviation(left) + absDeviation(right))
		if imp > best.improvement {
			best.improvement = imp
			best.threshold = threshold(samples[i].x, samples[i+1].x)
			found = true
		}
	}
	return best, found
}

func insertSorted(s []float64, v float64) []float64 {
	i := sort.SearchFloat64s(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []float64, v float64) []float64 {
	i := sort.SearchFloat64s(s, v)
	return append(s[:i], s[i+1:]...)
}

func absDeviation(sorted []float64) float64 {
	med := median(sorted)
	var dev float64
	for _, v := range sorted {
		dev += math.Abs(v - med)
	}
	return dev
}
