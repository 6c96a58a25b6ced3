// Package xgboost implements gradient boosting with second-order (Newton)
// trees and exact greedy split finding, following the XGBoost formulation
// for the squared error objective.
package xgboost

import (
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	"github.com/mlops-project/trainer/sklearn/tree"
)

func init() {
	gob.Register(&XGBRegressor{})
}

// XGBRegressor is a boosted ensemble of regression trees fitted on the
// gradient and hessian of the squared error loss.
type XGBRegressor struct {
	State *model.StateManager

	// Hyperparameters
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	RegLambda      float64
	Gamma          float64
	MinChildWeight float64
	Subsample      float64
	RandomState    int64

	// Learned
	BaseScore float64
	Trees     []*tree.Tree
}

// Option configures an XGBRegressor.
type Option func(*XGBRegressor)

// WithNEstimators sets the number of boosting rounds.
func WithNEstimators(n int) Option {
	return func(x *XGBRegressor) { x.NEstimators = n }
}

// WithLearningRate sets the shrinkage (eta).
func WithLearningRate(lr float64) Option {
	return func(x *XGBRegressor) { x.LearningRate = lr }
}

// WithMaxDepth sets the depth of each tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(x *XGBRegressor) { x.MaxDepth = d }
}

// WithRegLambda sets the L2 penalty on leaf weights.
func WithRegLambda(l float64) Option {
	return func(x *XGBRegressor) { x.RegLambda = l }
}

// WithGamma sets the minimum loss reduction required to split.
func WithGamma(g float64) Option {
	return func(x *XGBRegressor) { x.Gamma = g }
}

// WithMinChildWeight sets the minimum hessian sum of a child.
func WithMinChildWeight(w float64) Option {
	return func(x *XGBRegressor) { x.MinChildWeight = w }
}

// WithSubsample sets the fraction of rows drawn for each round.
func WithSubsample(s float64) Option {
	return func(x *XGBRegressor) { x.Subsample = s }
}

// WithRandomState sets the seed used for row sub-sampling.
func WithRandomState(seed int64) Option {
	return func(x *XGBRegressor) { x.RandomState = seed }
}

// NewXGBRegressor creates a regressor with the XGBoost defaults.
func NewXGBRegressor(opts ...Option) *XGBRegressor {
	x := &XGBRegressor{
		State:          model.NewStateManager(),
		NEstimators:    100,
		LearningRate:   0.3,
		MaxDepth:       6,
		RegLambda:      1,
		Gamma:          0,
		MinChildWeight: 1,
		Subsample:      1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *XGBRegressor) validate() error {
	if err := validate.PositiveInt("n_estimators", x.NEstimators); err != nil {
		return err
	}
	if err := validate.OpenUnitFloat("learning_rate", x.LearningRate); err != nil {
		return err
	}
	if x.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", x.MaxDepth)
	}
	if err := validate.NonNegativeFloat("reg_lambda", x.RegLambda); err != nil {
		return err
	}
	if err := validate.NonNegativeFloat("gamma", x.Gamma); err != nil {
		return err
	}
	if err := validate.NonNegativeFloat("min_child_weight", x.MinChildWeight); err != nil {
		return err
	}
	return validate.OpenUnitFloat("subsample", x.Subsample)
}

// Fit boosts NEstimators trees starting from the mean of y.
func (x *XGBRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "XGBRegressor.Fit")

	if err := x.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("XGBRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	data := validate.Rows(X)
	rng := validate.NewRand(validate.Seed(x.RandomState))

	var sum float64
	for _, v := range yv {
		sum += v
	}
	x.BaseScore = sum / float64(rows)

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = x.BaseScore
	}
	// squared error: g = pred - y, h = 1
	grad := make([]float64, rows)
	hess := make([]float64, rows)
	for i := range hess {
		hess[i] = 1
	}

	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}
	nInBag := max(1, int(x.Subsample*float64(rows)))
	p := growParams{
		maxDepth:       x.MaxDepth,
		lambda:         x.RegLambda,
		gamma:          x.Gamma,
		minChildWeight: x.MinChildWeight,
		learningRate:   x.LearningRate,
	}

	x.Trees = make([]*tree.Tree, 0, x.NEstimators)
	for m := 0; m < x.NEstimators; m++ {
		for i := range grad {
			grad[i] = pred[i] - yv[i]
		}
		idx := all
		if nInBag < rows {
			idx = rng.Perm(rows)[:nInBag]
		}
		t := growTree(data, grad, hess, idx, p)
		for i := range pred {
			pred[i] += t.PredictRow(data[i])
		}
		if err := errors.CheckSlice("xgboost_update", pred, m); err != nil {
			return err
		}
		x.Trees = append(x.Trees, t)
	}

	x.State.SetDimensions(cols, rows)
	x.State.SetFitted()

	log.GetLoggerWithName("xgboost").Debug("fitted",
		log.ModelNameKey, "XGBRegressor",
		"n_estimators", x.NEstimators,
		log.LearningRateKey, x.LearningRate,
	)
	return nil
}

// Predict returns BaseScore plus the sum of all tree outputs.
func (x *XGBRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("XGBRegressor.Predict", x.State, "XGBRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		v := x.BaseScore
		for _, t := range x.Trees {
			v += t.PredictRow(row)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// Score returns the R² of the predictions.
func (x *XGBRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(x, X, y)
}

// FeatureImportances returns the normalized total split gain per feature.
func (x *XGBRegressor) FeatureImportances() ([]float64, error) {
	if err := x.State.RequireFitted("XGBRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	nFeatures, _ := x.State.GetDimensions()
	imp := make([]float64, nFeatures)
	var total float64
	for _, t := range x.Trees {
		for i := range t.Nodes {
			n := &t.Nodes[i]
			if n.IsLeaf() {
				continue
			}
			imp[n.Feature] += n.Gain
			total += n.Gain
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp, nil
}

func (x *XGBRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     x.NEstimators,
		"learning_rate":    x.LearningRate,
		"max_depth":        x.MaxDepth,
		"reg_lambda":       x.RegLambda,
		"gamma":            x.Gamma,
		"min_child_weight": x.MinChildWeight,
		"subsample":        x.Subsample,
		"random_state":     x.RandomState,
	}
}

func (x *XGBRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "n_estimators":
			x.NEstimators, err = model.ParamInt(name, v)
		case "learning_rate", "eta":
			x.LearningRate, err = model.ParamFloat(name, v)
		case "max_depth":
			x.MaxDepth, err = model.ParamInt(name, v)
		case "reg_lambda", "lambda":
			x.RegLambda, err = model.ParamFloat(name, v)
		case "gamma", "min_split_loss":
			x.Gamma, err = model.ParamFloat(name, v)
		case "min_child_weight":
			x.MinChildWeight, err = model.ParamFloat(name, v)
		case "subsample":
			x.Subsample, err = model.ParamFloat(name, v)
		case "random_state", "seed":
			var n int
			n, err = model.ParamInt(name, v)
			x.RandomState = int64(n)
		default:
			err = model.UnknownParam("XGBRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *XGBRegressor) Clone() model.Regressor {
	c := *x
	c.State = model.NewStateManager()
	c.Trees = nil
	c.BaseScore = 0
	return &c
}

func (x *XGBRegressor) String() string {
	return fmt.Sprintf("XGBRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d, reg_lambda=%g)",
		x.NEstimators, x.LearningRate, x.MaxDepth, x.RegLambda)
}
