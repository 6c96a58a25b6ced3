package xgboost

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/pkg/errors"
)

func smoothData(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0 := float64(i) / float64(n) * 6
		x1 := float64((i*7)%n) / float64(n)
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		y.Set(i, 0, math.Sin(x0)+2*x1)
	}
	return X, y
}

func TestSplitGain(t *testing.T) {
	g := &grower{p: growParams{lambda: 1}}

	// 0.5 * (100/6 + 100/6 - 0)
	gain := g.splitGain(-10, 5, 10, 5)
	if math.Abs(gain-16.667) > 0.01 {
		t.Errorf("Expected gain 16.667, got %.4f", gain)
	}

	if gain := g.splitGain(0, 5, 0, 5); gain != 0 {
		t.Errorf("Expected zero gain for neutral split, got %.4f", gain)
	}
}

func TestLeafValue(t *testing.T) {
	g := &grower{
		p:    growParams{lambda: 1},
		grad: []float64{-1, -2, -3, 1, 2},
		hess: []float64{1, 1, 1, 1, 1},
	}
	G, H := g.sums([]int{0, 1, 2})
	// -(-6)/(3+1)
	if v := g.leafValue(G, H); math.Abs(v-1.5) > 1e-12 {
		t.Errorf("Leaf value calculation wrong: got %.4f, want 1.5", v)
	}
}

func TestXGBRegressor_Fit(t *testing.T) {
	X, y := smoothData(100)
	x := NewXGBRegressor(WithNEstimators(50))
	require.NoError(t, x.Fit(X, y))

	score, err := x.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.95)
	assert.Len(t, x.Trees, 50)

	var mean float64
	for i := 0; i < 100; i++ {
		mean += y.At(i, 0)
	}
	assert.InDelta(t, mean/100, x.BaseScore, 1e-12)
}

func TestXGBRegressor_GammaPreventsSplits(t *testing.T) {
	X, y := smoothData(40)
	x := NewXGBRegressor(WithNEstimators(5), WithGamma(1e9))
	require.NoError(t, x.Fit(X, y))

	for _, tr := range x.Trees {
		assert.Equal(t, 1, tr.NLeaves())
	}
	pred, err := x.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		assert.InDelta(t, x.BaseScore, pred.At(i, 0), 1e-9)
	}
}

func TestXGBRegressor_MinChildWeight(t *testing.T) {
	X, y := smoothData(40)
	x := NewXGBRegressor(WithNEstimators(3), WithMinChildWeight(25))
	require.NoError(t, x.Fit(X, y))
	for _, tr := range x.Trees {
		assert.Equal(t, 1, tr.NLeaves(), "no split can leave 25 samples on both sides of 40")
	}
}

func TestXGBRegressor_SubsampleDeterministic(t *testing.T) {
	X, y := smoothData(60)
	a := NewXGBRegressor(WithNEstimators(10), WithSubsample(0.7), WithRandomState(4))
	b := NewXGBRegressor(WithNEstimators(10), WithSubsample(0.7), WithRandomState(4))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	pa, _ := a.Predict(X)
	pb, _ := b.Predict(X)
	assert.True(t, mat.Equal(pa, pb))
}

func TestXGBRegressor_FeatureImportances(t *testing.T) {
	X, y := smoothData(80)
	x := NewXGBRegressor(WithNEstimators(10))
	require.NoError(t, x.Fit(X, y))

	imp, err := x.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
}

func TestXGBRegressor_PersistenceAndClone(t *testing.T) {
	X, y := smoothData(50)
	x := NewXGBRegressor(WithNEstimators(8), WithLearningRate(0.1))
	require.NoError(t, x.Fit(X, y))

	path := filepath.Join(t.TempDir(), "model.pkl")
	require.NoError(t, model.SavePath(path, x))
	loaded, err := model.LoadRegressor(path)
	require.NoError(t, err)
	want, _ := x.Predict(X)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	clone := x.Clone()
	assert.Equal(t, x.GetParams(), clone.GetParams())
	_, err = clone.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestXGBRegressor_Validation(t *testing.T) {
	X, y := smoothData(10)
	for name, params := range map[string]map[string]interface{}{
		"zero learning rate": {"learning_rate": 0.0},
		"negative lambda":    {"reg_lambda": -1.0},
		"subsample > 1":      {"subsample": 1.5},
	} {
		t.Run(name, func(t *testing.T) {
			x := NewXGBRegressor()
			require.NoError(t, x.SetParams(params))
			var ve *errors.ValidationError
			assert.True(t, errors.As(x.Fit(X, y), &ve))
		})
	}

	err := NewXGBRegressor().SetParams(map[string]interface{}{"colsample": 0.5})
	assert.Error(t, err)
}
