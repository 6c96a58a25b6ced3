package tree

import (
	"encoding/gob"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
)

func init() {
	gob.Register(&DecisionTreeRegressor{})
}

// DecisionTreeRegressor is a CART regression tree compatible with
// scikit-learn's DecisionTreeRegressor.
type DecisionTreeRegressor struct {
	State *model.StateManager

	// Hyperparameters
	Criterion           string
	MaxDepth            int // 0 means nodes are expanded until pure
	MinSamplesSplit     int
	MinSamplesLeaf      int
	MaxFeatures         MaxFeatures
	MinImpurityDecrease float64
	RandomState         int64

	// Learned
	Tree *Tree
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithCriterion sets the split quality criterion.
func WithCriterion(c string) Option {
	return func(dt *DecisionTreeRegressor) { dt.Criterion = c }
}

// WithMaxDepth sets the maximum depth of the tree.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features considered per split.
func WithMaxFeatures(mf MaxFeatures) Option {
	return func(dt *DecisionTreeRegressor) { dt.MaxFeatures = mf }
}

// WithMinImpurityDecrease sets the minimum weighted impurity decrease of a split.
func WithMinImpurityDecrease(v float64) Option {
	return func(dt *DecisionTreeRegressor) { dt.MinImpurityDecrease = v }
}

// WithRandomState sets the seed used for feature sub-sampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeRegressor) { dt.RandomState = seed }
}

// NewDecisionTreeRegressor creates a tree with scikit-learn defaults.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		State:           model.NewStateManager(),
		Criterion:       SquaredError,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     AllFeatures(),
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Validate checks the hyperparameters.
func (dt *DecisionTreeRegressor) Validate() error {
	if err := ValidateCriterion(dt.Criterion); err != nil {
		return err
	}
	if dt.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", dt.MaxDepth)
	}
	if dt.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.MinSamplesSplit)
	}
	if err := validate.PositiveInt("min_samples_leaf", dt.MinSamplesLeaf); err != nil {
		return err
	}
	if err := validate.NonNegativeFloat("min_impurity_decrease", dt.MinImpurityDecrease); err != nil {
		return err
	}
	return dt.MaxFeatures.Validate()
}

// Params returns the builder configuration for nFeatures input features.
func (dt *DecisionTreeRegressor) Params(nFeatures int) Params {
	return Params{
		Criterion:           dt.Criterion,
		MaxDepth:            dt.MaxDepth,
		MinSamplesSplit:     dt.MinSamplesSplit,
		MinSamplesLeaf:      dt.MinSamplesLeaf,
		MaxFeatures:         dt.MaxFeatures.Resolve(nFeatures),
		MinImpurityDecrease: dt.MinImpurityDecrease,
	}
}

// CheckTarget rejects targets the criterion cannot handle.
func CheckTarget(criterion string, y []float64) error {
	if criterion != Poisson {
		return nil
	}
	var sum float64
	for _, v := range y {
		if v < 0 {
			return errors.NewValueError("DecisionTreeRegressor.Fit", "some value(s) of y are negative which is not allowed for Poisson regression")
		}
		sum += v
	}
	if sum <= 0 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "sum of y is not positive which is necessary for Poisson regression")
	}
	return nil
}

// Fit はモデルを訓練データで学習
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if err := dt.Validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	if err := CheckTarget(dt.Criterion, yv); err != nil {
		return err
	}

	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	rng := validate.NewRand(validate.Seed(dt.RandomState))
	dt.Tree = Build(validate.Rows(X), yv, idx, dt.Params(cols), rng)

	dt.State.SetDimensions(cols, rows)
	dt.State.SetFitted()

	log.GetLoggerWithName("tree").Debug("fitted",
		log.ModelNameKey, "DecisionTreeRegressor",
		"criterion", dt.Criterion,
		"depth", dt.Tree.MaxDepth,
		"leaves", dt.Tree.NLeaves(),
	)
	return nil
}

// Predict は入力データに対する予測を行う
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("DecisionTreeRegressor.Predict", dt.State, "DecisionTreeRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.Tree.PredictRow(row))
	}
	return out, nil
}

// Score はモデルの決定係数（R²）を計算
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(dt, X, y)
}

// FeatureImportances returns the impurity-based feature importances.
func (dt *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if err := dt.State.RequireFitted("DecisionTreeRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.Tree.FeatureImportances(), nil
}

// GetParams returns the model's hyperparameters (scikit-learn compatible)
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             dt.Criterion,
		"max_depth":             dt.MaxDepth,
		"min_samples_split":     dt.MinSamplesSplit,
		"min_samples_leaf":      dt.MinSamplesLeaf,
		"max_features":          dt.MaxFeatures.Value(),
		"min_impurity_decrease": dt.MinImpurityDecrease,
		"random_state":          dt.RandomState,
	}
}

// SetParams sets the model's hyperparameters (scikit-learn compatible)
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "criterion":
			dt.Criterion, err = model.ParamString(name, v)
		case "max_depth":
			dt.MaxDepth, err = optionalDepth(v)
		case "min_samples_split":
			dt.MinSamplesSplit, err = model.ParamInt(name, v)
		case "min_samples_leaf":
			dt.MinSamplesLeaf, err = model.ParamInt(name, v)
		case "max_features":
			dt.MaxFeatures, err = ParseMaxFeatures(v)
		case "min_impurity_decrease":
			dt.MinImpurityDecrease, err = model.ParamFloat(name, v)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(name, v)
			dt.RandomState = int64(seed)
		default:
			err = model.UnknownParam("DecisionTreeRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// optionalDepth accepts nil for "unlimited" in addition to integers.
func optionalDepth(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	return model.ParamInt("max_depth", v)
}

// Clone returns an unfitted copy with the same hyperparameters.
func (dt *DecisionTreeRegressor) Clone() model.Regressor {
	c := *dt
	c.State = model.NewStateManager()
	c.Tree = nil
	return &c
}

func (dt *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(criterion=%s, max_depth=%d, random_state=%d)",
		dt.Criterion, dt.MaxDepth, dt.RandomState)
}

// MaxFeatures describes how many features a split examines: a fraction of
// the input features, an absolute count, or the "sqrt"/"log2" rules.
type MaxFeatures struct {
	Rule     string // "", "sqrt" or "log2"
	Fraction float64
	Count    int
}

// AllFeatures examines every feature at each split.
func AllFeatures() MaxFeatures {
	return MaxFeatures{Fraction: 1.0}
}

// ParseMaxFeatures converts a scikit-learn style max_features value. Floats
// are fractions, integers are counts, nil means all features.
func ParseMaxFeatures(v interface{}) (MaxFeatures, error) {
	switch x := v.(type) {
	case nil:
		return AllFeatures(), nil
	case string:
		switch strings.ToLower(x) {
		case "sqrt", "log2":
			return MaxFeatures{Rule: strings.ToLower(x)}, nil
		}
		return MaxFeatures{}, errors.NewValidationError("max_features", "must be sqrt, log2, an int or a float", v)
	case float64:
		mf := MaxFeatures{Fraction: x}
		return mf, mf.Validate()
	case float32:
		mf := MaxFeatures{Fraction: float64(x)}
		return mf, mf.Validate()
	default:
		n, err := model.ParamInt("max_features", v)
		if err != nil {
			return MaxFeatures{}, err
		}
		mf := MaxFeatures{Count: n}
		return mf, mf.Validate()
	}
}

// Validate checks the value.
func (mf MaxFeatures) Validate() error {
	switch {
	case mf.Rule != "":
		if mf.Rule != "sqrt" && mf.Rule != "log2" {
			return errors.NewValidationError("max_features", "unknown rule", mf.Rule)
		}
	case mf.Count != 0:
		return validate.PositiveInt("max_features", mf.Count)
	default:
		return validate.OpenUnitFloat("max_features", mf.Fraction)
	}
	return nil
}

// Resolve returns the number of features examined per split.
func (mf MaxFeatures) Resolve(nFeatures int) int {
	var n int
	switch {
	case mf.Rule == "sqrt":
		n = int(math.Sqrt(float64(nFeatures)))
	case mf.Rule == "log2":
		n = int(math.Log2(float64(nFeatures)))
	case mf.Count > 0:
		n = mf.Count
	default:
		n = int(mf.Fraction * float64(nFeatures))
	}
	return min(max(n, 1), nFeatures)
}

// Value returns the scikit-learn style representation accepted by
// ParseMaxFeatures.
func (mf MaxFeatures) Value() interface{} {
	switch {
	case mf.Rule != "":
		return mf.Rule
	case mf.Count > 0:
		return mf.Count
	default:
		return mf.Fraction
	}
}

func (mf MaxFeatures) String() string {
	switch {
	case mf.Rule != "":
		return mf.Rule
	case mf.Count > 0:
		return fmt.Sprintf("%d", mf.Count)
	default:
		return fmt.Sprintf("%g", mf.Fraction)
	}
}
