package ensemble

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
	gob.Register(&GradientBoostingRegressor{})
}

// GradientBoostingRegressor fits shallow regression trees to the residuals
// of the squared error loss. Compatible with scikit-learn's
// GradientBoostingRegressor(loss="squared_error").
type GradientBoostingRegressor struct {
	State *model.StateManager

	// Hyperparameters
	LearningRate    float64
	NEstimators     int
	Subsample       float64
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     tree.MaxFeatures
	RandomState     int64

	// Learned
	Init       float64
	Trees      []*tree.Tree
	TrainScore []float64 // training loss after each stage
}

// GBOption configures a GradientBoostingRegressor.
type GBOption func(*GradientBoostingRegressor)

// WithGBLearningRate sets the shrinkage applied to every tree.
func WithGBLearningRate(lr float64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.LearningRate = lr }
}

// WithGBNEstimators sets the number of boosting stages.
func WithGBNEstimators(n int) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.NEstimators = n }
}

// WithSubsample sets the fraction of samples drawn for each stage.
func WithSubsample(s float64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.Subsample = s }
}

// WithGBMaxDepth sets the depth of the individual trees.
func WithGBMaxDepth(d int) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.MaxDepth = d }
}

// WithGBRandomState sets the seed.
func WithGBRandomState(seed int64) GBOption {
	return func(gb *GradientBoostingRegressor) { gb.RandomState = seed }
}

// NewGradientBoostingRegressor creates a booster with scikit-learn defaults.
func NewGradientBoostingRegressor(opts ...GBOption) *GradientBoostingRegressor {
	gb := &GradientBoostingRegressor{
		State:           model.NewStateManager(),
		LearningRate:    0.1,
		NEstimators:     100,
		Subsample:       1.0,
		Criterion:       tree.FriedmanMSE,
		MaxDepth:        3,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     tree.AllFeatures(),
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

func (gb *GradientBoostingRegressor) validate() error {
	if err := validate.PositiveFloat("learning_rate", gb.LearningRate); err != nil {
		return err
	}
	if err := validate.PositiveInt("n_estimators", gb.NEstimators); err != nil {
		return err
	}
	if err := validate.OpenUnitFloat("subsample", gb.Subsample); err != nil {
		return err
	}
	if gb.Criterion != tree.FriedmanMSE && gb.Criterion != tree.SquaredError {
		return errors.NewValidationError("criterion", "must be friedman_mse or squared_error", gb.Criterion)
	}
	if gb.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unlimited)", gb.MaxDepth)
	}
	if gb.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", gb.MinSamplesSplit)
	}
	if err := validate.PositiveInt("min_samples_leaf", gb.MinSamplesLeaf); err != nil {
		return err
	}
	return gb.MaxFeatures.Validate()
}

// Fit runs NEstimators boosting stages starting from the mean of y.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	if err := gb.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	data := validate.Rows(X)
	rng := validate.NewRand(validate.Seed(gb.RandomState))

	var sum float64
	for _, v := range yv {
		sum += v
	}
	gb.Init = sum / float64(rows)

	F := make([]float64, rows)
	for i := range F {
		F[i] = gb.Init
	}
	residual := make([]float64, rows)
	params := tree.Params{
		Criterion:       gb.Criterion,
		MaxDepth:        gb.MaxDepth,
		MinSamplesSplit: gb.MinSamplesSplit,
		MinSamplesLeaf:  gb.MinSamplesLeaf,
		MaxFeatures:     gb.MaxFeatures.Resolve(cols),
	}

	nInBag := max(1, int(gb.Subsample*float64(rows)))
	all := make([]int, rows)
	for i := range all {
		all[i] = i
	}

	gb.Trees = make([]*tree.Tree, 0, gb.NEstimators)
	gb.TrainScore = make([]float64, 0, gb.NEstimators)
	for m := 0; m < gb.NEstimators; m++ {
		for i := range residual {
			residual[i] = yv[i] - F[i]
		}

		idx := all
		if nInBag < rows {
			perm := rng.Perm(rows)
			idx = perm[:nInBag]
		}

		t := tree.Build(data, residual, idx, params, rng)
		var loss float64
		for i := range F {
			F[i] += gb.LearningRate * t.PredictRow(data[i])
			d := yv[i] - F[i]
			loss += d * d
		}
		if err := errors.CheckSlice("gradient_boosting_update", F, m); err != nil {
			return err
		}
		gb.Trees = append(gb.Trees, t)
		gb.TrainScore = append(gb.TrainScore, loss/float64(rows))
	}

	gb.State.SetDimensions(cols, rows)
	gb.State.SetFitted()

	log.GetLoggerWithName("ensemble").Debug("fitted",
		log.ModelNameKey, "GradientBoostingRegressor",
		"n_estimators", gb.NEstimators,
		log.LearningRateKey, gb.LearningRate,
		"train_loss", gb.TrainScore[len(gb.TrainScore)-1],
	)
	return nil
}

// Predict returns Init plus the shrunken sum of all stage predictions.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("GradientBoostingRegressor.Predict", gb.State, "GradientBoostingRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		v := gb.Init
		for _, t := range gb.Trees {
			v += gb.LearningRate * t.PredictRow(row)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// Score returns the R² of the predictions.
func (gb *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(gb, X, y)
}

// FeatureImportances averages the impurity-based importances of the stages.
func (gb *GradientBoostingRegressor) FeatureImportances() ([]float64, error) {
	if err := gb.State.RequireFitted("GradientBoostingRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return meanImportances(gb.Trees, nil), nil
}

func (gb *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate":     gb.LearningRate,
		"n_estimators":      gb.NEstimators,
		"subsample":         gb.Subsample,
		"criterion":         gb.Criterion,
		"max_depth":         gb.MaxDepth,
		"min_samples_split": gb.MinSamplesSplit,
		"min_samples_leaf":  gb.MinSamplesLeaf,
		"max_features":      gb.MaxFeatures.Value(),
		"random_state":      gb.RandomState,
	}
}

func (gb *GradientBoostingRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "learning_rate":
			gb.LearningRate, err = model.ParamFloat(name, v)
		case "n_estimators":
			gb.NEstimators, err = model.ParamInt(name, v)
		case "subsample":
			gb.Subsample, err = model.ParamFloat(name, v)
		case "criterion":
			gb.Criterion, err = model.ParamString(name, v)
		case "max_depth":
			if v == nil {
				gb.MaxDepth = 0
			} else {
				gb.MaxDepth, err = model.ParamInt(name, v)
			}
		case "min_samples_split":
			gb.MinSamplesSplit, err = model.ParamInt(name, v)
		case "min_samples_leaf":
			gb.MinSamplesLeaf, err = model.ParamInt(name, v)
		case "max_features":
			gb.MaxFeatures, err = tree.ParseMaxFeatures(v)
		case "random_state":
			gb.RandomState, err = paramSeed(v)
		default:
			err = model.UnknownParam("GradientBoostingRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (gb *GradientBoostingRegressor) Clone() model.Regressor {
	c := *gb
	c.State = model.NewStateManager()
	c.Trees = nil
	c.TrainScore = nil
	c.Init = 0
	return &c
}

func (gb *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(learning_rate=%g, n_estimators=%d, subsample=%g, max_depth=%d)",
		gb.LearningRate, gb.NEstimators, gb.Subsample, gb.MaxDepth)
}
