// Package pipeline selects, gates and persists the best regression model
// for a pair of pre-split numeric train/test arrays.
package pipeline

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/metrics"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	ms "github.com/mlops-project/trainer/sklearn/model_selection"
)

// ModelScore is the outcome of one registry entry.
type ModelScore struct {
	Name       string                 `json:"name"`
	TrainScore float64                `json:"train_score"`
	TestScore  float64                `json:"test_score"`
	CVScore    float64                `json:"cv_score"` // 0 when the grid is empty
	BestParams map[string]interface{} `json:"best_params"`
	FitTime    time.Duration          `json:"fit_time"`

	// Model is the estimator refitted on the full training data
	Model model.Regressor `json:"-"`
}

// Report lists the model scores in registry order.
type Report []ModelScore

// Scores returns the name -> test score mapping.
func (r Report) Scores() map[string]float64 {
	out := make(map[string]float64, len(r))
	for _, s := range r {
		out[s.Name] = s.TestScore
	}
	return out
}

// Best returns the first entry with the highest test score. NaN scores are
// skipped; a report without a finite score has no best entry.
func (r Report) Best() (ModelScore, bool) {
	best := -1
	for i, s := range r {
		if math.IsNaN(s.TestScore) {
			continue
		}
		if best < 0 || s.TestScore > r[best].TestScore {
			best = i
		}
	}
	if best < 0 {
		return ModelScore{}, false
	}
	return r[best], true
}

// Get returns the entry with the given name.
func (r Report) Get(name string) (ModelScore, bool) {
	for _, s := range r {
		if s.Name == name {
			return s, true
		}
	}
	return ModelScore{}, false
}

type evalConfig struct {
	cvFolds int
	nJobs   int
	logger  log.Logger
}

// EvalOption configures EvaluateModels.
type EvalOption func(*evalConfig)

// WithCVFolds sets the number of cross-validation folds of every search.
func WithCVFolds(k int) EvalOption {
	return func(c *evalConfig) { c.cvFolds = k }
}

// WithSearchJobs sets the number of concurrent grid-search fits.
func WithSearchJobs(n int) EvalOption {
	return func(c *evalConfig) { c.nJobs = n }
}

// WithEvalLogger sets the logger used for per-model records.
func WithEvalLogger(l log.Logger) EvalOption {
	return func(c *evalConfig) { c.logger = l }
}

// EvaluateModels runs, for each entry in order, a grid search with K-fold
// cross-validation on the training data, refits the estimator with the best
// parameters on the full training data and scores it on both splits. The
// test R² is what the report ranks by. Any search or refit failure aborts
// the evaluation.
func EvaluateModels(XTrain, yTrain, XTest, yTest mat.Matrix, entries []RegistryEntry, opts ...EvalOption) (Report, error) {
	cfg := evalConfig{cvFolds: 3, nJobs: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetLoggerWithName("pipeline")
	}
	if len(entries) == 0 {
		return nil, errors.NewValueError("EvaluateModels", "no models to evaluate")
	}

	report := make(Report, 0, len(entries))
	for _, entry := range entries {
		score, err := evaluateOne(XTrain, yTrain, XTest, yTest, entry, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s", entry.Name)
		}
		cfg.logger.Info("model evaluated",
			log.ModelNameKey, score.Name,
			log.R2ScoreKey, score.TestScore,
			"train_r2", score.TrainScore,
			log.CVScoreKey, score.CVScore,
			log.BestParamsKey, ms.FormatParams(score.BestParams),
			log.DurationMsKey, score.FitTime.Milliseconds(),
		)
		report = append(report, score)
	}
	return report, nil
}

func evaluateOne(XTrain, yTrain, XTest, yTest mat.Matrix, entry RegistryEntry, cfg evalConfig) (ModelScore, error) {
	start := time.Now()
	est := entry.New()
	params := map[string]interface{}{}
	cvScore := 0.0

	if len(entry.Grid) > 0 {
		gs := ms.NewGridSearchCV(est, entry.Grid,
			ms.WithCV(cfg.cvFolds),
			ms.WithNJobs(cfg.nJobs),
			ms.WithRefit(false),
		)
		if err := gs.Fit(XTrain, yTrain); err != nil {
			return ModelScore{}, err
		}
		params = gs.BestParams
		cvScore = gs.BestScore
		if err := est.SetParams(params); err != nil {
			return ModelScore{}, err
		}
	}

	if err := est.Fit(XTrain, yTrain); err != nil {
		return ModelScore{}, err
	}
	fitTime := time.Since(start)

	trainPred, err := est.Predict(XTrain)
	if err != nil {
		return ModelScore{}, err
	}
	testPred, err := est.Predict(XTest)
	if err != nil {
		return ModelScore{}, err
	}
	trainScore, err := metrics.R2ScoreMatrix(yTrain, trainPred)
	if err != nil {
		return ModelScore{}, err
	}
	testScore, err := metrics.R2ScoreMatrix(yTest, testPred)
	if err != nil {
		return ModelScore{}, err
	}

	return ModelScore{
		Name:       entry.Name,
		TrainScore: trainScore,
		TestScore:  testScore,
		CVScore:    cvScore,
		BestParams: params,
		FitTime:    fitTime,
		Model:      est,
	}, nil
}
