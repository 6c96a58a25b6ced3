package catboost

// ObliviousTree applies the same (feature, border) test to every node of a
// level. The leaf of a sample is the bit pattern of its test outcomes, with
// level k contributing bit k.
type ObliviousTree struct {
	Features   []int
	Borders    []float64
	LeafValues []float64
}

// Leaf returns the leaf index of x.
func (t *ObliviousTree) Leaf(x []float64) int {
	leaf := 0
	for k, f := range t.Features {
		if x[f] > t.Borders[k] {
			leaf |= 1 << k
		}
	}
	return leaf
}

// PredictRow returns the leaf value of x.
func (t *ObliviousTree) PredictRow(x []float64) float64 {
	return t.LeafValues[t.Leaf(x)]
}

type levelSplit struct {
	feature int
	border  int
	score   float64
}

type obliviousBuilder struct {
	bins     [][]int // bins[f][i]: bin of sample i on feature f
	borders  [][]float64
	residual []float64
	depth    int
	l2       float64
}

// build grows one symmetric tree on the rows in idx. Each level picks the
// split maximizing sum over leaves of S²/(n+l2) for both halves. Growth stops
// early when no split separates any leaf.
func (b *obliviousBuilder) build(idx []int, learningRate float64) *ObliviousTree {
	leafOf := make([]int, len(b.residual))
	t := &ObliviousTree{}

	for level := 0; level < b.depth; level++ {
		best, ok := b.bestLevelSplit(idx, leafOf, level)
		if !ok {
			break
		}
		t.Features = append(t.Features, best.feature)
		t.Borders = append(t.Borders, b.borders[best.feature][best.border])
		for _, i := range idx {
			if b.bins[best.feature][i] > best.border {
				leafOf[i] |= 1 << level
			}
		}
	}

	nLeaves := 1 << len(t.Features)
	sum := make([]float64, nLeaves)
	cnt := make([]float64, nLeaves)
	for _, i := range idx {
		sum[leafOf[i]] += b.residual[i]
		cnt[leafOf[i]]++
	}
	t.LeafValues = make([]float64, nLeaves)
	for l := range t.LeafValues {
		t.LeafValues[l] = learningRate * sum[l] / (cnt[l] + b.l2)
	}
	return t
}

func (b *obliviousBuilder) bestLevelSplit(idx, leafOf []int, level int) (levelSplit, bool) {
	// compact ids for the leaves that hold samples
	active := map[int]int{}
	for _, i := range idx {
		if _, ok := active[leafOf[i]]; !ok {
			active[leafOf[i]] = len(active)
		}
	}
	nActive := len(active)

	best := levelSplit{score: 0}
	found := false

	for f, fb := range b.borders {
		nBins := len(fb) + 1
		if nBins < 2 {
			continue
		}
		sum := make([]float64, nActive*nBins)
		cnt := make([]float64, nActive*nBins)
		totalSum := make([]float64, nActive)
		totalCnt := make([]float64, nActive)
		for _, i := range idx {
			a := active[leafOf[i]]
			bin := b.bins[f][i]
			sum[a*nBins+bin] += b.residual[i]
			cnt[a*nBins+bin]++
			totalSum[a] += b.residual[i]
			totalCnt[a]++
		}

		leftSum := make([]float64, nActive)
		leftCnt := make([]float64, nActive)
		for k := 0; k < len(fb); k++ {
			var score float64
			separates := false
			for a := 0; a < nActive; a++ {
				leftSum[a] += sum[a*nBins+k]
				leftCnt[a] += cnt[a*nBins+k]
				rs, rc := totalSum[a]-leftSum[a], totalCnt[a]-leftCnt[a]
				if leftCnt[a] > 0 && rc > 0 {
					separates = true
				}
				score += leftSum[a]*leftSum[a]/(leftCnt[a]+b.l2) + rs*rs/(rc+b.l2)
			}
			if !separates {
				continue
			}
			if !found || score > best.score {
				best = levelSplit{feature: f, border: k, score: score}
				found = true
			}
		}
	}
	return best, found
}
