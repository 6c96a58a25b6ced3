package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う (n_samples x 1)
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はスコアを計算できるモデルのインターフェース
type Scorer interface {
	// Score は予測の決定係数（R²）を返す
	Score(X, y mat.Matrix) (float64, error)
}

// Estimator はハイパーパラメータを公開するモデルのインターフェース。
// パラメータ名はscikit-learnと同じ名前を使う。
type Estimator interface {
	GetParams() map[string]interface{}
	SetParams(params map[string]interface{}) error
}

// Regressor は回帰モデルの共通インターフェース。
// Clone は同じハイパーパラメータを持つ未学習のインスタンスを返す。
type Regressor interface {
	Fitter
	Predictor
	Scorer
	Estimator
	Clone() Regressor
}
