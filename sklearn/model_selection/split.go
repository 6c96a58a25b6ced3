// Package model_selection provides cross-validation splitters, parameter
// grids and an exhaustive grid search over regressors.
package model_selection

import (
	"fmt"

	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
)

// Splitter generates train/test index pairs for cross-validation.
type Splitter interface {
	Split(nSamples int) ([]Fold, error)
	GetNSplits() int
}

// Fold is a single train/test split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits the samples into NSplits consecutive folds, each used once as
// the test set. The first n % NSplits folds get one extra sample. Without
// Shuffle the split is fully determined by the sample order.
type KFold struct {
	NSplits     int
	Shuffle     bool
	RandomState int64
}

// NewKFold creates a k-fold splitter.
func NewKFold(nSplits int, shuffle bool, randomState int64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomState: randomState}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
func (kf *KFold) Split(nSamples int) ([]Fold, error) {
	if kf.NSplits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be >= 2", kf.NSplits)
	}
	if kf.NSplits > nSamples {
		return nil, errors.NewValueError("KFold.Split",
			fmt.Sprintf("cannot have number of splits n_splits=%d greater than the number of samples: n_samples=%d",
				kf.NSplits, nSamples))
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := validate.NewRand(validate.Seed(kf.RandomState))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	inTest := make([]bool, nSamples)

	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])

		for j := range inTest {
			inTest[j] = false
		}
		for _, k := range test {
			inTest[k] = true
		}
		train := make([]int, 0, nSamples-testSize)
		for _, k := range indices {
			if !inTest[k] {
				train = append(train, k)
			}
		}

		folds[i] = Fold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds, nil
}
