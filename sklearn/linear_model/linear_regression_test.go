package linear_model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/pkg/errors"
)

func TestLinearRegression_FitPredict(t *testing.T) {
	// y = 2*x1 - 3*x2 + 1
	X := mat.NewDense(6, 2, []float64{
		1, 0,
		2, 1,
		3, 5,
		4, 2,
		5, 3,
		6, 1,
	})
	y := mat.NewDense(6, 1, nil)
	for i := 0; i < 6; i++ {
		y.Set(i, 0, 2*X.At(i, 0)-3*X.At(i, 1)+1)
	}

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if math.Abs(lr.Coef[0]-2) > 1e-9 || math.Abs(lr.Coef[1]+3) > 1e-9 {
		t.Errorf("unexpected coefficients: %v", lr.Coef)
	}
	if math.Abs(lr.Intercept-1) > 1e-9 {
		t.Errorf("unexpected intercept: %v", lr.Intercept)
	}

	score, err := lr.Score(X, y)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("expected perfect score, got %v", score)
	}
}

func TestLinearRegression_NoIntercept(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 6, 9, 12})

	lr := NewLinearRegression(WithFitIntercept(false))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if lr.Intercept != 0 {
		t.Errorf("intercept should be zero, got %v", lr.Intercept)
	}
	if math.Abs(lr.Coef[0]-3) > 1e-9 {
		t.Errorf("coef = %v, want 3", lr.Coef[0])
	}
}

func TestLinearRegression_RankDeficient(t *testing.T) {
	// second column duplicates the first: minimum-norm solution splits the weight
	X := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if lr.Rank != 1 {
		t.Errorf("rank = %d, want 1", lr.Rank)
	}
	if math.Abs(lr.Coef[0]-1) > 1e-9 || math.Abs(lr.Coef[1]-1) > 1e-9 {
		t.Errorf("expected minimum-norm coefficients [1 1], got %v", lr.Coef)
	}
}

func TestLinearRegression_Errors(t *testing.T) {
	lr := NewLinearRegression()

	_, err := lr.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	err = lr.Fit(mat.NewDense(3, 2, nil), mat.NewDense(2, 1, nil))
	var dim *errors.DimensionError
	if !errors.As(err, &dim) {
		t.Errorf("expected DimensionError, got %v", err)
	}

	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{1, math.NaN(), 3})
	err = lr.Fit(X, y)
	var num *errors.NumericalInstabilityError
	if !errors.As(err, &num) {
		t.Errorf("expected NumericalInstabilityError, got %v", err)
	}

	if err := lr.Fit(X, mat.NewDense(3, 1, []float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	_, err = lr.Predict(mat.NewDense(2, 3, nil))
	if !errors.As(err, &dim) {
		t.Errorf("expected DimensionError on feature mismatch, got %v", err)
	}
}

func TestLinearRegression_Params(t *testing.T) {
	lr := NewLinearRegression()
	if err := lr.SetParams(map[string]interface{}{"fit_intercept": false}); err != nil {
		t.Fatal(err)
	}
	if lr.FitIntercept {
		t.Error("fit_intercept should be false")
	}
	if err := lr.SetParams(map[string]interface{}{"alpha": 1.0}); err == nil {
		t.Error("expected error for unknown parameter")
	}

	clone := lr.Clone().(*LinearRegression)
	if clone.FitIntercept || clone.State.IsFitted() {
		t.Errorf("clone should copy hyperparameters and be unfitted: %+v", clone)
	}
}
