package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ms "github.com/mlops-project/trainer/sklearn/model_selection"
)

func TestRegistry_OrderAndGrids(t *testing.T) {
	entries := Registry()

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{
		RandomForest, DecisionTree, LinearRegression, XGBoost,
		CatBoost, KNeighbors, AdaBoost, GradientBoosting,
	}, names)

	sizes := map[string]int{
		RandomForest:     6,
		DecisionTree:     4,
		LinearRegression: 1,
		XGBoost:          24,
		CatBoost:         36,
		KNeighbors:       5,
		AdaBoost:         24,
		GradientBoosting: 144,
	}
	for _, e := range entries {
		assert.Equal(t, sizes[e.Name], e.Grid.Size(), e.Name)
	}
}

func TestRegistry_GridParamsAreAccepted(t *testing.T) {
	for _, e := range Registry() {
		t.Run(e.Name, func(t *testing.T) {
			candidates, err := ms.ParameterGrid(e.Grid)
			require.NoError(t, err)
			for _, params := range candidates {
				assert.NoError(t, e.New().SetParams(params), ms.FormatParams(params))
			}
		})
	}
}

func TestRegistry_FactoriesReturnFreshEstimators(t *testing.T) {
	for _, e := range Registry() {
		a, b := e.New(), e.New()
		assert.NotSame(t, a, b, e.Name)
	}
}

func TestApplyGridOverrides(t *testing.T) {
	entries := Registry()
	out, err := ApplyGridOverrides(entries, map[string]ms.ParamGrid{
		RandomForest: {"n_estimators": {10}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out[0].Grid.Size())
	assert.Equal(t, 6, entries[0].Grid.Size(), "input must not change")

	_, err = ApplyGridOverrides(entries, map[string]ms.ParamGrid{"SVR": {"C": {1}}})
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	out, err := Select(Registry(), []string{KNeighbors, RandomForest})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, RandomForest, out[0].Name, "registry order is kept")
	assert.Equal(t, KNeighbors, out[1].Name)

	all, err := Select(Registry(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	_, err = Select(Registry(), []string{"Lasso"})
	assert.Error(t, err)
}
