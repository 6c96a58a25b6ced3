package xgboost

import (
	"sort"

	"github.com/mlops-project/trainer/sklearn/tree"
)

// rtEps is the smallest loss reduction accepted as a split.
const rtEps = 1e-6

type growParams struct {
	maxDepth       int
	lambda         float64
	gamma          float64
	minChildWeight float64
	learningRate   float64
}

type grower struct {
	p     growParams
	X     [][]float64
	grad  []float64
	hess  []float64
	nodes []tree.Node
	depth int
}

type candidate struct {
	feature   int
	threshold float64
	gain      float64
}

// growTree builds one second-order regression tree on the rows in idx.
// Leaf values are already shrunk by the learning rate.
func growTree(X [][]float64, grad, hess []float64, idx []int, p growParams) *tree.Tree {
	g := &grower{p: p, X: X, grad: grad, hess: hess}
	g.grow(idx, 0)
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	return &tree.Tree{Nodes: g.nodes, NFeatures: nFeatures, MaxDepth: g.depth}
}

func (g *grower) sums(idx []int) (G, H float64) {
	for _, i := range idx {
		G += g.grad[i]
		H += g.hess[i]
	}
	return G, H
}

// leafValue is the optimal weight -G/(H+lambda).
func (g *grower) leafValue(G, H float64) float64 {
	return -G / (H + g.p.lambda)
}

// splitGain is the structure score improvement of a split, before gamma.
func (g *grower) splitGain(GL, HL, GR, HR float64) float64 {
	lambda := g.p.lambda
	left := GL * GL / (HL + lambda)
	right := GR * GR / (HR + lambda)
	parent := (GL + GR) * (GL + GR) / (HL + HR + lambda)
	return 0.5 * (left + right - parent)
}

func (g *grower) grow(idx []int, depth int) int {
	G, H := g.sums(idx)
	id := len(g.nodes)
	g.nodes = append(g.nodes, tree.Node{
		Feature:  tree.Leaf,
		Left:     tree.Leaf,
		Right:    tree.Leaf,
		Value:    g.p.learningRate * g.leafValue(G, H),
		NSamples: len(idx),
		Depth:    depth,
	})
	if depth > g.depth {
		g.depth = depth
	}
	if g.p.maxDepth > 0 && depth >= g.p.maxDepth {
		return id
	}

	best, ok := g.bestSplit(idx, G, H)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)

	n := &g.nodes[id]
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Left = l
	n.Right = r
	n.Gain = best.gain
	return id
}

// bestSplit is the exact greedy search: every feature is sorted and every
// boundary between distinct values is evaluated.
func (g *grower) bestSplit(idx []int, G, H float64) (candidate, bool) {
	best := candidate{gain: rtEps}
	found := false
	if len(idx) < 2 {
		return best, false
	}
	order := make([]int, len(idx))
	for f := range g.X[0] {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return g.X[order[a]][f] < g.X[order[b]][f] })

		var GL, HL float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			GL += g.grad[i]
			HL += g.hess[i]
			cur, next := g.X[i][f], g.X[order[k+1]][f]
			if next <= cur {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < g.p.minChildWeight || HR < g.p.minChildWeight {
				continue
			}
			gain := g.splitGain(GL, HL, GR, HR) - g.p.gamma
			if gain > best.gain {
				best = candidate{feature: f, threshold: cur + (next-cur)/2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
