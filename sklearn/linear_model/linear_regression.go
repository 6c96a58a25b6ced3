package linear_model

import (
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
)

const machineEpsilon = 2.220446049250313e-16

func init() {
	gob.Register(&LinearRegression{})
}

// LinearRegression is a linear regression model using ordinary least squares.
// Compatible with scikit-learn's LinearRegression: the problem is solved on
// centred data with an SVD-based least squares solver, so rank-deficient
// inputs yield the minimum-norm solution.
type LinearRegression struct {
	State *model.StateManager

	// Hyperparameters
	FitIntercept bool // Whether to learn the intercept
	Positive     bool // Clip negative coefficients to zero after solving

	// Learned parameters
	Coef      []float64
	Intercept float64
	Rank      int
}

// LinearRegressionOption は設定オプション
type LinearRegressionOption func(*LinearRegression)

// WithFitIntercept は切片の学習有無を設定
func WithFitIntercept(fit bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithPositive は係数の正制約を設定
func WithPositive(positive bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.Positive = positive
	}
}

// NewLinearRegression は新しいLinearRegressionモデルを作成
func NewLinearRegression(options ...LinearRegressionOption) *LinearRegression {
	lr := &LinearRegression{
		State:        model.NewStateManager(),
		FitIntercept: true,
	}
	for _, opt := range options {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	rows, cols, err := validate.FitInput("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}

	Xc := mat.DenseCopyOf(X)
	yc := mat.NewVecDense(rows, validate.Column(y))

	xMean := make([]float64, cols)
	var yMean float64
	if lr.FitIntercept {
		for j := 0; j < cols; j++ {
			col := mat.Col(nil, j, Xc)
			xMean[j] = floats.Sum(col) / float64(rows)
			for i := 0; i < rows; i++ {
				Xc.Set(i, j, col[i]-xMean[j])
			}
		}
		yMean = floats.Sum(yc.RawVector().Data) / float64(rows)
		for i := 0; i < rows; i++ {
			yc.SetVec(i, yc.AtVec(i)-yMean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD factorization failed", nil)
	}
	// singular values below rcond*s_max are treated as zero, as in numpy lstsq
	rcond := float64(max(rows, cols)) * machineEpsilon
	lr.Rank = svd.Rank(rcond)

	lr.Coef = make([]float64, cols)
	if lr.Rank > 0 {
		var beta mat.Dense
		svd.SolveTo(&beta, yc, lr.Rank)
		for j := 0; j < cols; j++ {
			lr.Coef[j] = beta.At(j, 0)
		}
	}
	if lr.Positive {
		for j := range lr.Coef {
			lr.Coef[j] = math.Max(lr.Coef[j], 0)
		}
	}
	lr.Intercept = 0
	if lr.FitIntercept {
		lr.Intercept = yMean - floats.Dot(xMean, lr.Coef)
	}
	if err := errors.CheckSlice("LinearRegression.Fit", lr.Coef, 0); err != nil {
		return err
	}

	lr.State.SetDimensions(cols, rows)
	lr.State.SetFitted()

	log.GetLoggerWithName("linear_model").Debug("fitted",
		log.ModelNameKey, "LinearRegression",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"rank", lr.Rank,
	)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("LinearRegression.Predict", lr.State, "LinearRegression", X)
	if err != nil {
		return nil, err
	}

	_, cols := X.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		pred := lr.Intercept
		for j := 0; j < cols; j++ {
			pred += X.At(i, j) * lr.Coef[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Score はモデルの決定係数（R²）を計算
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(lr, X, y)
}

// GetParams returns the model's hyperparameters (scikit-learn compatible)
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
		"positive":      lr.Positive,
	}
}

// SetParams sets the model's hyperparameters (scikit-learn compatible)
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "fit_intercept":
			lr.FitIntercept, err = model.ParamBool(name, v)
		case "positive":
			lr.Positive, err = model.ParamBool(name, v)
		default:
			err = model.UnknownParam("LinearRegression", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone はモデルの新しいインスタンスを作成（同じハイパーパラメータ、未学習）
func (lr *LinearRegression) Clone() model.Regressor {
	return NewLinearRegression(
		WithFitIntercept(lr.FitIntercept),
		WithPositive(lr.Positive),
	)
}

// String returns the string representation of the model
func (lr *LinearRegression) String() string {
	if !lr.State.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t, positive=%t)", lr.FitIntercept, lr.Positive)
	}
	nFeatures, _ := lr.State.GetDimensions()
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, fitted=true)", lr.FitIntercept, nFeatures)
}
