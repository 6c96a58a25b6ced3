// Package catboost implements gradient boosting over symmetric (oblivious)
// decision trees built on quantized feature borders, in the manner of
// CatBoost's plain boosting mode for the RMSE loss.
package catboost

import (
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/internal/validate"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
)

func init() {
	gob.Register(&CatBoostRegressor{})
}

const maxDepth = 16

// CatBoostRegressor boosts oblivious trees on the residuals of the squared
// error loss. Leaf values are Σresidual/(n+l2_leaf_reg) scaled by the
// learning rate.
type CatBoostRegressor struct {
	State *model.StateManager

	// Hyperparameters
	Iterations   int
	LearningRate float64
	Depth        int
	L2LeafReg    float64
	BorderCount  int
	Verbose      bool

	// Learned
	BaseScore float64
	Trees     []*ObliviousTree
}

// Option configures a CatBoostRegressor.
type Option func(*CatBoostRegressor)

// WithIterations sets the number of trees.
func WithIterations(n int) Option {
	return func(c *CatBoostRegressor) { c.Iterations = n }
}

// WithLearningRate sets the shrinkage.
func WithLearningRate(lr float64) Option {
	return func(c *CatBoostRegressor) { c.LearningRate = lr }
}

// WithDepth sets the depth of every symmetric tree.
func WithDepth(d int) Option {
	return func(c *CatBoostRegressor) { c.Depth = d }
}

// WithL2LeafReg sets the L2 regularization of leaf values.
func WithL2LeafReg(l float64) Option {
	return func(c *CatBoostRegressor) { c.L2LeafReg = l }
}

// WithBorderCount sets the maximum number of borders per feature.
func WithBorderCount(n int) Option {
	return func(c *CatBoostRegressor) { c.BorderCount = n }
}

// WithVerbose logs the training loss every 100 iterations.
func WithVerbose(v bool) Option {
	return func(c *CatBoostRegressor) { c.Verbose = v }
}

// NewCatBoostRegressor creates a regressor with the CatBoost defaults.
func NewCatBoostRegressor(opts ...Option) *CatBoostRegressor {
	c := &CatBoostRegressor{
		State:        model.NewStateManager(),
		Iterations:   1000,
		LearningRate: 0.03,
		Depth:        6,
		L2LeafReg:    3,
		BorderCount:  254,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CatBoostRegressor) validate() error {
	if err := validate.PositiveInt("iterations", c.Iterations); err != nil {
		return err
	}
	if err := validate.PositiveFloat("learning_rate", c.LearningRate); err != nil {
		return err
	}
	if c.Depth < 1 || c.Depth > maxDepth {
		return errors.NewValidationError("depth", fmt.Sprintf("must be in [1, %d]", maxDepth), c.Depth)
	}
	if err := validate.NonNegativeFloat("l2_leaf_reg", c.L2LeafReg); err != nil {
		return err
	}
	if c.BorderCount < 1 || c.BorderCount > 65535 {
		return errors.NewValidationError("border_count", "must be in [1, 65535]", c.BorderCount)
	}
	return nil
}

// Fit quantizes X and boosts Iterations oblivious trees from the mean of y.
func (c *CatBoostRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "CatBoostRegressor.Fit")

	if err := c.validate(); err != nil {
		return err
	}
	rows, cols, err := validate.FitInput("CatBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	yv := validate.Column(y)
	data := validate.Rows(X)

	b := &obliviousBuilder{
		bins:     make([][]int, cols),
		borders:  make([][]float64, cols),
		residual: make([]float64, rows),
		depth:    c.Depth,
		l2:       c.L2LeafReg,
	}
	column := make([]float64, rows)
	for f := 0; f < cols; f++ {
		for i := range column {
			column[i] = data[i][f]
		}
		b.borders[f] = borders(column, c.BorderCount)
		b.bins[f] = make([]int, rows)
		for i, v := range column {
			b.bins[f][i] = binIndex(b.borders[f], v)
		}
	}

	var sum float64
	for _, v := range yv {
		sum += v
	}
	c.BaseScore = sum / float64(rows)
	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = c.BaseScore
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}

	logger := log.GetLoggerWithName("catboost")
	c.Trees = make([]*ObliviousTree, 0, c.Iterations)
	for it := 0; it < c.Iterations; it++ {
		for i := range b.residual {
			b.residual[i] = yv[i] - pred[i]
		}
		t := b.build(idx, c.LearningRate)
		var loss float64
		for i := range pred {
			pred[i] += t.PredictRow(data[i])
			d := yv[i] - pred[i]
			loss += d * d
		}
		if err := errors.CheckSlice("catboost_update", pred, it); err != nil {
			return err
		}
		c.Trees = append(c.Trees, t)
		if c.Verbose && (it%100 == 0 || it == c.Iterations-1) {
			logger.Info("iteration", log.IterationKey, it, "train_rmse", math.Sqrt(loss/float64(rows)))
		}
	}

	c.State.SetDimensions(cols, rows)
	c.State.SetFitted()

	logger.Debug("fitted",
		log.ModelNameKey, "CatBoostRegressor",
		"iterations", c.Iterations,
		"depth", c.Depth,
		log.LearningRateKey, c.LearningRate,
	)
	return nil
}

// Predict returns BaseScore plus the leaf values of every tree.
func (c *CatBoostRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := validate.PredictInput("CatBoostRegressor.Predict", c.State, "CatBoostRegressor", X)
	if err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		v := c.BaseScore
		for _, t := range c.Trees {
			v += t.PredictRow(row)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// Score returns the R² of the predictions.
func (c *CatBoostRegressor) Score(X, y mat.Matrix) (float64, error) {
	return validate.Score(c, X, y)
}

func (c *CatBoostRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"iterations":    c.Iterations,
		"learning_rate": c.LearningRate,
		"depth":         c.Depth,
		"l2_leaf_reg":   c.L2LeafReg,
		"border_count":  c.BorderCount,
		"verbose":       c.Verbose,
	}
}

func (c *CatBoostRegressor) SetParams(params map[string]interface{}) error {
	for name, v := range params {
		var err error
		switch name {
		case "iterations", "n_estimators":
			c.Iterations, err = model.ParamInt(name, v)
		case "learning_rate":
			c.LearningRate, err = model.ParamFloat(name, v)
		case "depth", "max_depth":
			c.Depth, err = model.ParamInt(name, v)
		case "l2_leaf_reg", "reg_lambda":
			c.L2LeafReg, err = model.ParamFloat(name, v)
		case "border_count":
			c.BorderCount, err = model.ParamInt(name, v)
		case "verbose":
			c.Verbose, err = model.ParamBool(name, v)
		default:
			err = model.UnknownParam("CatBoostRegressor", name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *CatBoostRegressor) Clone() model.Regressor {
	cp := *c
	cp.State = model.NewStateManager()
	cp.Trees = nil
	cp.BaseScore = 0
	return &cp
}

func (c *CatBoostRegressor) String() string {
	return fmt.Sprintf("CatBoostRegressor(iterations=%d, learning_rate=%g, depth=%d, l2_leaf_reg=%g)",
		c.Iterations, c.LearningRate, c.Depth, c.L2LeafReg)
}
