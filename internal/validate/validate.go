// Package validate holds the input checks and small helpers shared by the
// estimators.
package validate

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/metrics"
	"github.com/mlops-project/trainer/pkg/errors"
)

// FitInput checks a training pair: X non-empty, y a column with the same
// number of rows, no NaN or Inf anywhere. It returns the dimensions of X.
func FitInput(op string, X, y mat.Matrix) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.NewValueError(op, "empty data")
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return 0, 0, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	if err := errors.CheckMatrix(op, X, 0); err != nil {
		return 0, 0, err
	}
	if err := errors.CheckMatrix(op, y, 0); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}

// PredictInput checks that X is non-empty and has the fitted feature count.
func PredictInput(op string, state *model.StateManager, name string, X mat.Matrix) (rows int, err error) {
	if err := state.RequireFitted(name, "Predict"); err != nil {
		return 0, err
	}
	rows, cols := X.Dims()
	if rows == 0 {
		return 0, errors.NewValueError(op, "empty data")
	}
	if err := state.CheckFeatures(op, cols); err != nil {
		return 0, err
	}
	return rows, nil
}

// Column copies the first column of y into a slice.
func Column(y mat.Matrix) []float64 {
	r, _ := y.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = y.At(i, 0)
	}
	return out
}

// Rows copies X into row-major slices for fast row access.
func Rows(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	out := make([][]float64, r)
	for i := range out {
		row := make([]float64, c)
		for j := range row {
			row[j] = X.At(i, j)
		}
		out[i] = row
	}
	return out
}

// Score returns the R² of p's predictions on X against y.
func Score(p model.Predictor, X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// NewRand returns a PCG-backed generator seeded from seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Seed converts a random_state value to the generator seed.
func Seed(randomState int64) uint64 {
	return uint64(randomState)
}

// PositiveInt validates a hyperparameter that must be >= 1.
func PositiveInt(name string, v int) error {
	if v < 1 {
		return errors.NewValidationError(name, "must be >= 1", v)
	}
	return nil
}

// OpenUnitFloat validates a hyperparameter in (0, 1].
func OpenUnitFloat(name string, v float64) error {
	if !(v > 0 && v <= 1) {
		return errors.NewValidationError(name, "must be in (0, 1]", v)
	}
	return nil
}

// PositiveFloat validates a hyperparameter that must be > 0.
func PositiveFloat(name string, v float64) error {
	if !(v > 0) {
		return errors.NewValidationError(name, "must be > 0", v)
	}
	return nil
}

// NonNegativeFloat validates a hyperparameter that must be >= 0.
func NonNegativeFloat(name string, v float64) error {
	if !(v >= 0) {
		return errors.NewValidationError(name, "must be >= 0", v)
	}
	return nil
}
