package ensemble

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	"github.com/mlops-project/trainer/sklearn/tree"
)

func init() {
	gob.Register(&AdaBoostRegressor{})
}

// AdaBoost.R2 loss functions.
const (
	LossLinear      = "linear"
	LossSquare      = "square"
	LossExponential = "exponential"
)

// AdaBoostRegressor implements AdaBoost.R2 (Drucker, 1997) with depth-3
// regression trees fitted on weighted bootstrap samples, as scikit-learn's
// AdaBoostRegressor does.
type AdaBoostRegressor struct {
	State *model.StateManager

	// Hyperparameters
	NEstimators  int
	LearningRate float64
	Loss         string
	MaxDepth     int // depth of the base trees
	RandomState  int64

	// Learned
	Trees            []*tree.Tree
	EstimatorWeights []float64
	EstimatorErrors  []float64
}

// AdaOption configures an AdaBoostRegressor.
type AdaOption func(*AdaBoostRegressor)

// WithAdaNEstimators sets the maximum number of boosting rounds.
func WithAdaNEstimators(n int) AdaOption {
	return func(ab *AdaBoostRegressor) { ab.NEstimators = n }
}

// WithAdaLearningRate sets the weight shrinkage of each regressor.
func WithAdaLearningRate(lr float64) AdaOption {
	return func(ab *AdaBoostRegressor) { ab.LearningRate = lr }
}

// WithAdaLoss sets the loss used to update sample weights.
func WithAdaLoss(loss string) AdaOption {
	return func(ab *AdaBoostRegressor) { ab.Loss = loss }
}

// WithAdaRandomState sets the seed.
func WithAdaRandomState(seed int64) AdaOption {
	return func(ab *AdaBoostRegressor) { ab.RandomState = seed }
}

// NewAdaBoostRegressor creates a booster with scikit-learn defaults.
func NewAdaBoostRegressor(opts ...AdaOption) *AdaBoostRegressor {
	ab := &AdaBoostRegressor{
		State:        model.NewStateManager(),
		NEstimators:  50,
		LearningRate: 1.0,
		Loss:         LossLinear,
		MaxDepth:     3,
	}
	for _, opt := range opts {
		opt(ab)
	}
	return ab
}

func (ab *AdaBoostRegressor) validate() error {
	if err := validate.PositiveInt("n_estimators", ab.NEstimators); err != nil {
		return err
	}
	if err := validate.PositiveFloat("learning_rate", ab.LearningRate); err != nil {
		return err
	}
	switch ab.Loss {
	case LossLinear, LossSquare, LossExponential:
	default:
		return errors.NewValidationError("loss", "must be linear, square or exponential", ab.Loss)
	}
	return validate.PositiveInt("max_depth", ab.MaxDepth)
}

// Fit runs up to NEstimators boosting rounds. Boosting stops early when a
// regressor fits perfectly or when its weighted error reaches 0.5.
func (ab *AdaBoostRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "AdaBoostRegressor.Fit")

	if err := ab.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("AdaBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	data := validate.Rows(X)
	rng := validate.NewRand(validate.Seed(ab.RandomState))

	weights := make([]float64, rows)
	for i := range weights {
		weights[i] = 1 / float64(rows)
	}
	params := tree.Params{Criterion: tree.SquaredError, MaxDepth: ab.MaxDepth}

	ab.Trees = nil
	ab.EstimatorWeights = nil
	ab.EstimatorErrors = nil
	errVec := make([]float64, rows)

	for iboost := 0; iboost < ab.NEstimators; iboost++ {
		idx := weightedBootstrap(rng, weights)
		t := tree.Build(data, yv, idx, params, rng)

		var errMax float64
		for i := range errVec {
			errVec[i] = math.Abs(t.PredictRow(data[i]) - yv[i])
			if weights[i] > 0 && errVec[i] > errMax {
				errMax = errVec[i]
			}
		}
		if errMax != 0 {
			for i := range errVec {
				errVec[i] /= errMax
			}
		}
		switch ab.Loss {
		case LossSquare:
			for i := range errVec {
				errVec[i] *= errVec[i]
			}
		case LossExponential:
			for i := range errVec {
				errVec[i] = 1 - math.Exp(-errVec[i])
			}
		}

		var estErr float64
		for i := range errVec {
			estErr += weights[i] * errVec[i]
		}

		if estErr <= 0 {
			// perfect fit: keep it with unit weight and stop
			ab.append(t, 1.0, 0)
			break
		}
		if estErr >= 0.5 {
			// worse than random; keep it only if it is the sole regressor
			if len(ab.Trees) == 0 {
				ab.append(t, 0, estErr)
			}
			break
		}

		beta := estErr / (1 - estErr)
		ab.append(t, ab.LearningRate*math.Log(1/beta), estErr)

		if iboost == ab.NEstimators-1 {
			break
		}
		var total float64
		for i := range weights {
			if weights[i] > 0 {
				weights[i] *= math.Pow(beta, (1-errVec[i])*ab.LearningRate)
			}
			total += weights[i]
		}
		if !(total > 0) {
			break
		}
		for i := range weights {
			weights[i] /= total
		}
	}

	ab.State.SetDimensions(cols, rows)
	ab.State.SetFitted()

	log.GetLoggerWithName("ensemble").Debug("fitted",
		log.ModelNameKey, "AdaBoostRegressor",
		"rounds", len(ab.Trees),
		"loss", ab.Loss,
	)
	return nil
}

func (ab *AdaBoostRegressor) append(t *tree.Tree, weight, estErr float64) {
	ab.Trees = append(ab.Trees, t)
	ab.EstimatorWeights = append(ab.EstimatorWeights, weight)
	ab.EstimatorErrors = append(ab.EstimatorErrors, estErr)
}

// weightedBootstrap draws len(weights) indices with replacement, with
// probability proportional to weights.
func weightedBootstrap(rng *rand.Rand, weights []float64) []int {
	n := len(weights)
	cdf := make([]float64, n)
	var acc float64
	for i, w := range weights {
		acc += w
		cdf[i] = acc
	}
	idx := make([]int, n)
	for k := range idx {
		u := rng.Float64() * acc
		i := sort.SearchFloat64s(cdf, u)
		if i >= n {
			i = n - 1
		}
		idx[k] = i
	}
	return idx
}

// Predict returns the weighted median of the regressors' predictions. When
// every estimator weight is zero the regressors are weighted equally.
func (ab *AdaBoostRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("AdaBoostRegressor.Predict", ab.State, "AdaBoostRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()

	weights := ab.EstimatorWeights
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		weights = make([]float64, len(ab.Trees))
		for i := range weights {
			weights[i] = 1
		}
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	preds := make([]float64, len(ab.Trees))
	order := make([]int, len(ab.Trees))
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		for k, t := range ab.Trees {
			preds[k] = t.PredictRow(row)
			order[k] = k
		}
		out.Set(i, 0, weightedMedian(preds, weights, order))
	}
	return out, nil
}

// weightedMedian returns the first prediction, in sorted order, at which the
// cumulative weight reaches half of the total.
func weightedMedian(preds, weights []float64, order []int) float64 {
	sort.SliceStable(order, func(a, b int) bool { return preds[order[a]] < preds[order[b]] })
	var total float64
	for _, w := range weights {
		total += w
	}
	var cum float64
	for _, k := range order {
		cum += weights[k]
		if cum >= 0.5*total {
			return preds[k]
		}
	}
	return preds[order[len(order)-1]]
}

// Score returns the R² of the predictions.
func (ab *AdaBoostRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(ab, X, y)
}

// FeatureImportances averages the tree importances weighted by estimator weight.
func (ab *AdaBoostRegressor) FeatureImportances() ([]float64, error) {
	if err := ab.State.RequireFitted("AdaBoostRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return meanImportances(ab.Trees, ab.EstimatorWeights), nil
}

func (ab *AdaBoostRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  ab.NEstimators,
		"learning_rate": ab.LearningRate,
		"loss":          ab.Loss,
		"max_depth":     ab.MaxDepth,
		"random_state":  ab.RandomState,
	}
}

func (ab *AdaBoostRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "n_estimators":
			ab.NEstimators, err = model.ParamInt(name, v)
		case "learning_rate":
			ab.LearningRate, err = model.ParamFloat(name, v)
		case "loss":
			ab.Loss, err = model.ParamString(name, v)
		case "max_depth":
			ab.MaxDepth, err = model.ParamInt(name, v)
		case "random_state":
			ab.RandomState, err = paramSeed(v)
		default:
			err = model.UnknownParam("AdaBoostRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (ab *AdaBoostRegressor) Clone() model.Regressor {
	c := *ab
	c.State = model.NewStateManager()
	c.Trees = nil
	c.EstimatorWeights = nil
	c.EstimatorErrors = nil
	return &c
}

func (ab *AdaBoostRegressor) String() string {
	return fmt.Sprintf("AdaBoostRegressor(n_estimators=%d, learning_rate=%g, loss=%s)",
		ab.NEstimators, ab.LearningRate, ab.Loss)
}
