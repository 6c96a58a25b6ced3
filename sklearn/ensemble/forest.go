// Package ensemble implements tree ensembles: bagging (random forest) and
// boosting (gradient boosting, AdaBoost.R2).
package ensemble

import (
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/core/parallel"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	"github.com/mlops-project/trainer/sklearn/tree"
)

func init() {
	gob.Register(&RandomForestRegressor{})
}

// RandomForestRegressor averages CART trees grown on bootstrap samples.
// Compatible with scikit-learn's RandomForestRegressor.
type RandomForestRegressor struct {
	State *model.StateManager

	// Hyperparameters
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     tree.MaxFeatures
	Bootstrap       bool
	NJobs           int
	RandomState     int64

	// Learned
	Trees []*tree.Tree
}

// ForestOption configures a RandomForestRegressor.
type ForestOption func(*RandomForestRegressor)

// WithForestNEstimators sets the number of trees.
func WithForestNEstimators(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NEstimators = n }
}

// WithForestCriterion sets the split criterion of every tree.
func WithForestCriterion(c string) ForestOption {
	return func(rf *RandomForestRegressor) { rf.Criterion = c }
}

// WithForestMaxDepth sets the maximum depth of every tree.
func WithForestMaxDepth(d int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MaxDepth = d }
}

// WithForestMaxFeatures sets the features examined per split.
func WithForestMaxFeatures(mf tree.MaxFeatures) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MaxFeatures = mf }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) ForestOption {
	return func(rf *RandomForestRegressor) { rf.Bootstrap = b }
}

// WithForestNJobs sets the number of goroutines used to grow trees.
func WithForestNJobs(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NJobs = n }
}

// WithForestRandomState sets the seed.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestRegressor) { rf.RandomState = seed }
}

// NewRandomForestRegressor creates a forest with scikit-learn defaults.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		State:           model.NewStateManager(),
		NEstimators:     100,
		Criterion:       tree.SquaredError,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     tree.AllFeatures(),
		Bootstrap:       true,
		NJobs:           1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestRegressor) validate() error {
	if err := validate.PositiveInt("n_estimators", rf.NEstimators); err != nil {
		return err
	}
	if err := tree.ValidateCriterion(rf.Criterion); err != nil {
		return err
	}
	if rf.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", rf.MaxDepth)
	}
	if rf.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", rf.MinSamplesSplit)
	}
	if err := validate.PositiveInt("min_samples_leaf", rf.MinSamplesLeaf); err != nil {
		return err
	}
	return rf.MaxFeatures.Validate()
}

// Fit grows NEstimators trees. Each tree gets its own seed drawn from
// RandomState up front, so the result does not depend on NJobs.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	if err := rf.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	if err := tree.CheckTarget(rf.Criterion, yv); err != nil {
		return err
	}
	data := validate.Rows(X)

	master := validate.NewRand(validate.Seed(rf.RandomState))
	seeds := make([]uint64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	params := tree.Params{
		Criterion:       rf.Criterion,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     rf.MaxFeatures.Resolve(cols),
	}

	trees := make([]*tree.Tree, rf.NEstimators)
	parallel.ParallelizeN(rf.NEstimators, rf.NJobs, func(i int) {
		rng := validate.NewRand(seeds[i])
		idx := make([]int, rows)
		for k := range idx {
			if rf.Bootstrap {
				idx[k] = rng.IntN(rows)
			} else {
				idx[k] = k
			}
		}
		trees[i] = tree.Build(data, yv, idx, params, rng)
	})
	rf.Trees = trees

	rf.State.SetDimensions(cols, rows)
	rf.State.SetFitted()

	log.GetLoggerWithName("ensemble").Debug("fitted",
		log.ModelNameKey, "RandomForestRegressor",
		"n_estimators", rf.NEstimators,
		log.SamplesKey, rows,
	)
	return nil
}

// Predict averages the predictions of all trees.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("RandomForestRegressor.Predict", rf.State, "RandomForestRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, t := range rf.Trees {
			sum += t.PredictRow(row)
		}
		out.Set(i, 0, sum/float64(len(rf.Trees)))
	}
	return out, nil
}

// Score returns the R² of the predictions.
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(rf, X, y)
}

// FeatureImportances averages the impurity-based importances of the trees.
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if err := rf.State.RequireFitted("RandomForestRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return meanImportances(rf.Trees, nil), nil
}

func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"criterion":         rf.Criterion,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures.Value(),
		"bootstrap":         rf.Bootstrap,
		"n_jobs":            rf.NJobs,
		"random_state":      rf.RandomState,
	}
}

func (rf *RandomForestRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "n_estimators":
			rf.NEstimators, err = model.ParamInt(name, v)
		case "criterion":
			rf.Criterion, err = model.ParamString(name, v)
		case "max_depth":
			if v == nil {
				rf.MaxDepth = 0
			} else {
				rf.MaxDepth, err = model.ParamInt(name, v)
			}
		case "min_samples_split":
			rf.MinSamplesSplit, err = model.ParamInt(name, v)
		case "min_samples_leaf":
			rf.MinSamplesLeaf, err = model.ParamInt(name, v)
		case "max_features":
			rf.MaxFeatures, err = tree.ParseMaxFeatures(v)
		case "bootstrap":
			rf.Bootstrap, err = model.ParamBool(name, v)
		case "n_jobs":
			rf.NJobs, err = model.ParamInt(name, v)
		case "random_state":
			rf.RandomState, err = paramSeed(v)
		default:
			err = model.UnknownParam("RandomForestRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (rf *RandomForestRegressor) Clone() model.Regressor {
	c := *rf
	c.State = model.NewStateManager()
	c.Trees = nil
	return &c
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, criterion=%s, random_state=%d)",
		rf.NEstimators, rf.Criterion, rf.RandomState)
}

func paramSeed(v interface{}) (int64, error) {
	n, err := model.ParamInt("random_state", v)
	return int64(n), err
}

// meanImportances averages per-tree importances, weighted by weights when
// given.
func meanImportances(trees []*tree.Tree, weights []float64) []float64 {
	if len(trees) == 0 {
		return nil
	}
	out := make([]float64, trees[0].NFeatures)
	var total float64
	for i, t := range trees {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		for j, v := range t.FeatureImportances() {
			out[j] += w * v
		}
		total += w
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}
