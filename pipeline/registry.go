package pipeline

import (
	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/sklearn/catboost"
	"github.com/mlops-project/trainer/sklearn/ensemble"
	"github.com/mlops-project/trainer/sklearn/linear_model"
	ms "github.com/mlops-project/trainer/sklearn/model_selection"
	"github.com/mlops-project/trainer/sklearn/neighbors"
	"github.com/mlops-project/trainer/sklearn/tree"
	"github.com/mlops-project/trainer/sklearn/xgboost"
)

// Candidate model names, in registry order.
const (
	RandomForest     = "Random Forest"
	DecisionTree     = "Decision Tree"
	LinearRegression = "Linear Regression"
	XGBoost          = "XGBoost"
	CatBoost         = "CatBoost"
	KNeighbors       = "KNeighbors"
	AdaBoost         = "AdaBoost"
	GradientBoosting = "Gradient Boosting"
)

// RegistryEntry is one candidate model: a factory for a fresh estimator and
// the grid searched for it. An empty grid fits the defaults without search.
type RegistryEntry struct {
	Name string
	New  func() model.Regressor
	Grid ms.ParamGrid
}

// Registry returns the default candidates with random state 0 and
// single-threaded estimators.
func Registry() []RegistryEntry {
	return NewRegistry(0, 1)
}

// NewRegistry returns the eight default candidates in selection order.
// randomState seeds every stochastic estimator and nJobs is passed to the
// estimators that parallelize internally.
func NewRegistry(randomState int64, nJobs int) []RegistryEntry {
	rates := []interface{}{.1, .01, .05, .001}
	sizes := []interface{}{8, 16, 32, 64, 128, 256}

	return []RegistryEntry{
		{
			Name: RandomForest,
			New: func() model.Regressor {
				return ensemble.NewRandomForestRegressor(
					ensemble.WithForestRandomState(randomState),
					ensemble.WithForestNJobs(nJobs),
				)
			},
			Grid: ms.ParamGrid{"n_estimators": sizes},
		},
		{
			Name: DecisionTree,
			New: func() model.Regressor {
				return tree.NewDecisionTreeRegressor(tree.WithRandomState(randomState))
			},
			Grid: ms.ParamGrid{
				"criterion": {tree.SquaredError, tree.FriedmanMSE, tree.AbsoluteError, tree.Poisson},
			},
		},
		{
			Name: LinearRegression,
			New:  func() model.Regressor { return linear_model.NewLinearRegression() },
			Grid: ms.ParamGrid{},
		},
		{
			Name: XGBoost,
			New: func() model.Regressor {
				return xgboost.NewXGBRegressor(xgboost.WithRandomState(randomState))
			},
			Grid: ms.ParamGrid{"learning_rate": rates, "n_estimators": sizes},
		},
		{
			Name: CatBoost,
			New:  func() model.Regressor { return catboost.NewCatBoostRegressor(catboost.WithVerbose(false)) },
			Grid: ms.ParamGrid{
				"depth":         {6, 8, 10},
				"learning_rate": rates,
				"iterations":    {30, 50, 100},
			},
		},
		{
			Name: KNeighbors,
			New: func() model.Regressor {
				return neighbors.NewKNeighborsRegressor(neighbors.WithNJobs(nJobs))
			},
			Grid: ms.ParamGrid{"n_neighbors": {3, 5, 7, 9, 11}},
		},
		{
			Name: AdaBoost,
			New: func() model.Regressor {
				return ensemble.NewAdaBoostRegressor(ensemble.WithAdaRandomState(randomState))
			},
			Grid: ms.ParamGrid{"n_estimators": sizes, "learning_rate": rates},
		},
		{
			Name: GradientBoosting,
			New: func() model.Regressor {
				return ensemble.NewGradientBoostingRegressor(ensemble.WithGBRandomState(randomState))
			},
			Grid: ms.ParamGrid{
				"learning_rate": rates,
				"subsample":     {0.6, 0.7, 0.75, 0.8, 0.85, 0.9},
				"n_estimators":  sizes,
			},
		},
	}
}

// ApplyGridOverrides replaces the grid of the named entries. A model name
// that is not in entries is an error. Entries are copied; the input slice is
// not modified.
func ApplyGridOverrides(entries []RegistryEntry, overrides map[string]ms.ParamGrid) ([]RegistryEntry, error) {
	out := make([]RegistryEntry, len(entries))
	copy(out, entries)

	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.Name] = i
	}
	for name, grid := range overrides {
		i, ok := index[name]
		if !ok {
			return nil, errors.NewValidationError("models", "unknown model name", name)
		}
		out[i].Grid = grid
	}
	return out, nil
}

// Select keeps only the named entries, preserving registry order.
func Select(entries []RegistryEntry, names []string) ([]RegistryEntry, error) {
	if len(names) == 0 {
		return entries, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []RegistryEntry
	for _, e := range entries {
		if want[e.Name] {
			out = append(out, e)
			delete(want, e.Name)
		}
	}
	for n := range want {
		return nil, errors.NewValidationError("models", "unknown model name", n)
	}
	return out, nil
}
