// Package tree implements CART regression trees.
//
// Fitted trees are stored as a flat slice of nodes so that the whole
// structure encodes with encoding/gob. The same builder backs the
// DecisionTreeRegressor and the tree ensembles in sklearn/ensemble.
package tree

// Leaf marks a node without children.
const Leaf = -1

// Node is a single node of a fitted tree.
type Node struct {
	// Split information (Feature == Leaf for leaves)
	Feature   int
	Threshold float64
	Left      int
	Right     int

	// Value is the prediction at this node
	Value float64

	Impurity float64
	NSamples int
	Depth    int

	// Gain is the loss reduction of the split, set by second-order boosters
	Gain float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Feature == Leaf
}

// Tree is a fitted regression tree. Nodes[0] is the root.
type Tree struct {
	Nodes     []Node
	NFeatures int
	MaxDepth  int
}

// PredictRow walks the tree for one sample. Samples with x[f] <= threshold
// go left.
func (t *Tree) PredictRow(x []float64) float64 {
	idx := t.Apply(x)
	return t.Nodes[idx].Value
}

// Apply returns the index of the leaf that x falls into.
func (t *Tree) Apply(x []float64) int {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return idx
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// NLeaves returns the number of leaves.
func (t *Tree) NLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// FeatureImportances returns the normalized total impurity decrease brought
// by each feature. A tree consisting of a single leaf yields all zeros.
func (t *Tree) FeatureImportances() []float64 {
	imp := make([]float64, t.NFeatures)
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		l, r := &t.Nodes[n.Left], &t.Nodes[n.Right]
		imp[n.Feature] += float64(n.NSamples)*n.Impurity -
			float64(l.NSamples)*l.Impurity -
			float64(r.NSamples)*r.Impurity
	}
	var total float64
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}
