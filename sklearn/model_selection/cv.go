package model_selection

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/core/parallel"
	"github.com/mlops-project/trainer/pkg/errors"
)

// SelectRows copies the rows of X listed in idx into a new matrix.
func SelectRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, k := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(k, j))
		}
	}
	return out
}

// fitAndScore fits est on the training rows of fold and returns its R² on
// the test rows.
func fitAndScore(est model.Regressor, X, y mat.Matrix, fold Fold) (float64, error) {
	if err := est.Fit(SelectRows(X, fold.TrainIndices), SelectRows(y, fold.TrainIndices)); err != nil {
		return math.NaN(), err
	}
	return est.Score(SelectRows(X, fold.TestIndices), SelectRows(y, fold.TestIndices))
}

// CrossValScore returns the R² of a fresh clone of est on every fold of cv.
// Folds run on up to nJobs goroutines; the first fold error is returned.
func CrossValScore(est model.Regressor, X, y mat.Matrix, cv Splitter, nJobs int) ([]float64, error) {
	rows, _ := X.Dims()
	folds, err := cv.Split(rows)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	errs := make([]error, len(folds))
	parallel.ParallelizeN(len(folds), nJobs, func(i int) {
		errs[i] = errors.SafeExecute("CrossValScore", func() error {
			var err error
			scores[i], err = fitAndScore(est.Clone(), X, y, folds[i])
			return err
		})
	})
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
	}
	return scores, nil
}
