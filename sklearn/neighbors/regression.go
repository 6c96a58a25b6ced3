// Package neighbors implements nearest-neighbour regression.
package neighbors

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/core/parallel"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
)

func init() {
	gob.Register(&KNeighborsRegressor{})
}

// Weight functions.
const (
	Uniform  = "uniform"
	Distance = "distance"
)

// KNeighborsRegressor predicts the (weighted) mean target of the k nearest
// training samples under the Minkowski distance. Neighbours are found by
// brute force; ties in distance go to the earlier training sample.
type KNeighborsRegressor struct {
	State *model.StateManager

	// Hyperparameters
	NNeighbors int
	Weights    string
	P          float64
	NJobs      int

	// Learned
	XTrain [][]float64
	YTrain []float64
}

// Option configures a KNeighborsRegressor.
type Option func(*KNeighborsRegressor)

// WithNNeighbors sets k.
func WithNNeighbors(k int) Option {
	return func(kn *KNeighborsRegressor) { kn.NNeighbors = k }
}

// WithWeights sets the weight function, uniform or distance.
func WithWeights(w string) Option {
	return func(kn *KNeighborsRegressor) { kn.Weights = w }
}

// WithP sets the Minkowski power (1 Manhattan, 2 Euclidean).
func WithP(p float64) Option {
	return func(kn *KNeighborsRegressor) { kn.P = p }
}

// WithNJobs sets the number of goroutines used by Predict.
func WithNJobs(n int) Option {
	return func(kn *KNeighborsRegressor) { kn.NJobs = n }
}

// NewKNeighborsRegressor creates a regressor with scikit-learn defaults.
func NewKNeighborsRegressor(opts ...Option) *KNeighborsRegressor {
	kn := &KNeighborsRegressor{
		State:      model.NewStateManager(),
		NNeighbors: 5,
		Weights:    Uniform,
		P:          2,
		NJobs:      1,
	}
	for _, opt := range opts {
		opt(kn)
	}
	return kn
}

func (kn *KNeighborsRegressor) validate() error {
	if err := validate.PositiveInt("n_neighbors", kn.NNeighbors); err != nil {
		return err
	}
	if kn.Weights != Uniform && kn.Weights != Distance {
		return errors.NewValidationError("weights", "must be uniform or distance", kn.Weights)
	}
	if !(kn.P >= 1) {
		return errors.NewValidationError("p", "must be >= 1", kn.P)
	}
	return nil
}

// Fit stores the training data.
func (kn *KNeighborsRegressor) Fit(X, y mat.Matrix) error {
	if err := kn.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("KNeighborsRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	kn.XTrain = validate.Rows(X)
	kn.YTrain = validate.Column(y)
	kn.State.SetDimensions(cols, rows)
	kn.State.SetFitted()

	log.GetLoggerWithName("neighbors").Debug("fitted",
		log.ModelNameKey, "KNeighborsRegressor",
		"n_neighbors", kn.NNeighbors,
		log.SamplesKey, rows,
	)
	return nil
}

// Predict averages the targets of the nearest neighbours of each row.
func (kn *KNeighborsRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("KNeighborsRegressor.Predict", kn.State, "KNeighborsRegressor", X)
	if err != nil {
		return nil, err
	}
	if kn.NNeighbors > len(kn.XTrain) {
		return nil, errors.NewValueError("KNeighborsRegressor.Predict",
			fmt.Sprintf("expected n_neighbors <= n_samples_fit, but n_neighbors = %d, n_samples_fit = %d",
				kn.NNeighbors, len(kn.XTrain)))
	}

	query := validate.Rows(X)
	out := make([]float64, rows)
	parallel.ParallelizeN(rows, kn.NJobs, func(i int) {
		out[i] = kn.predictRow(query[i])
	})
	return mat.NewDense(rows, 1, out), nil
}

type neighbor struct {
	index int
	dist  float64
}

func (kn *KNeighborsRegressor) predictRow(x []float64) float64 {
	cand := make([]neighbor, len(kn.XTrain))
	for i, t := range kn.XTrain {
		cand[i] = neighbor{index: i, dist: minkowski(x, t, kn.P)}
	}
	sort.SliceStable(cand, func(a, b int) bool { return cand[a].dist < cand[b].dist })
	nearest := cand[:kn.NNeighbors]

	if kn.Weights == Distance {
		// exact matches take all the weight
		var sum float64
		var n int
		for _, nb := range nearest {
			if nb.dist == 0 {
				sum += kn.YTrain[nb.index]
				n++
			}
		}
		if n > 0 {
			return sum / float64(n)
		}
		var wsum float64
		for _, nb := range nearest {
			w := 1 / nb.dist
			sum += w * kn.YTrain[nb.index]
			wsum += w
		}
		return sum / wsum
	}

	var sum float64
	for _, nb := range nearest {
		sum += kn.YTrain[nb.index]
	}
	return sum / float64(len(nearest))
}

func minkowski(a, b []float64, p float64) float64 {
	var sum float64
	switch p {
	case 1:
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	case 2:
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	default:
		for i := range a {
			sum += math.Pow(math.Abs(a[i]-b[i]), p)
		}
		return math.Pow(sum, 1/p)
	}
}

// Score returns the R² of the predictions.
func (kn *KNeighborsRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(kn, X, y)
}

func (kn *KNeighborsRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": kn.NNeighbors,
		"weights":     kn.Weights,
		"p":           kn.P,
		"n_jobs":      kn.NJobs,
	}
}

func (kn *KNeighborsRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "n_neighbors":
			kn.NNeighbors, err = model.ParamInt(name, v)
		case "weights":
			kn.Weights, err = model.ParamString(name, v)
		case "p":
			kn.P, err = model.ParamFloat(name, v)
		case "n_jobs":
			kn.NJobs, err = model.ParamInt(name, v)
		default:
			err = model.UnknownParam("KNeighborsRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (kn *KNeighborsRegressor) Clone() model.Regressor {
	return NewKNeighborsRegressor(
		WithNNeighbors(kn.NNeighbors),
		WithWeights(kn.Weights),
		WithP(kn.P),
		WithNJobs(kn.NJobs),
	)
}

func (kn *KNeighborsRegressor) String() string {
	return fmt.Sprintf("KNeighborsRegressor(n_neighbors=%d, weights=%s, p=%g)", kn.NNeighbors, kn.Weights, kn.P)
}
