package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})

	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}

	if s.Mean[0] != 2.5 {
		t.Errorf("mean = %v, want 2.5", s.Mean[0])
	}
	wantScale := math.Sqrt(1.25)
	if math.Abs(s.Scale[0]-wantScale) > 1e-12 {
		t.Errorf("scale = %v, want %v", s.Scale[0], wantScale)
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant feature scale = %v, want 1", s.Scale[1])
	}

	var sum float64
	for i := 0; i < 4; i++ {
		sum += out.At(i, 0)
		if out.At(i, 1) != 0 {
			t.Errorf("constant feature should map to 0, got %v", out.At(i, 1))
		}
	}
	if math.Abs(sum) > 1e-12 {
		t.Errorf("standardized column should have zero mean, sum = %v", sum)
	}

	back, err := s.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Error("inverse transform should restore the input")
	}
}

func TestStandardScaler_WithoutMean(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{2, 4})
	s := NewStandardScaler(false, true)
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0) != 2 || out.At(1, 0) != 4 {
		t.Errorf("got %v, want values divided by 1", mat.Formatted(out))
	}
}

func TestStandardScaler_Errors(t *testing.T) {
	s := NewStandardScalerDefault()
	_, err := s.Transform(mat.NewDense(1, 1, []float64{1}))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	}
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}
