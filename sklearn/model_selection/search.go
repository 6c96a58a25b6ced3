package model_selection

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/core/parallel"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
)

// CandidateResult holds the cross-validation outcome of one parameter
// combination. A candidate with any failed fold has a NaN mean.
type CandidateResult struct {
	Params        map[string]interface{}
	FoldScores    []float64
	MeanTestScore float64
	StdTestScore  float64
	MeanFitTime   time.Duration
	Rank          int
}

// GridSearchCV evaluates every combination of Grid with cross-validation and
// keeps the one with the highest mean R². Ties go to the combination
// enumerated first.
type GridSearchCV struct {
	Estimator model.Regressor
	Grid      ParamGrid
	CV        Splitter
	NJobs     int
	Refit     bool

	CVResults     []CandidateResult
	BestIndex     int
	BestScore     float64
	BestParams    map[string]interface{}
	BestEstimator model.Regressor
}

// SearchOption configures a GridSearchCV.
type SearchOption func(*GridSearchCV)

// WithCV uses unshuffled k-fold cross-validation with k folds.
func WithCV(k int) SearchOption {
	return func(g *GridSearchCV) { g.CV = NewKFold(k, false, 0) }
}

// WithSplitter sets a custom splitter.
func WithSplitter(s Splitter) SearchOption {
	return func(g *GridSearchCV) { g.CV = s }
}

// WithNJobs sets the number of concurrent fits. Values <= 0 use every CPU.
func WithNJobs(n int) SearchOption {
	return func(g *GridSearchCV) { g.NJobs = n }
}

// WithRefit controls whether the best combination is refitted on the full
// data.
func WithRefit(refit bool) SearchOption {
	return func(g *GridSearchCV) { g.Refit = refit }
}

// NewGridSearchCV creates a search with 5-fold CV, one job and refit.
func NewGridSearchCV(est model.Regressor, grid ParamGrid, opts ...SearchOption) *GridSearchCV {
	g := &GridSearchCV{
		Estimator: est,
		Grid:      grid,
		CV:        NewKFold(5, false, 0),
		NJobs:     1,
		Refit:     true,
		BestIndex: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fit runs the search. A combination whose fit fails on some fold is scored
// NaN and reported through a FitFailedWarning; the search fails only when
// every combination does. Invalid parameter names and refit failures are
// returned as errors.
func (g *GridSearchCV) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GridSearchCV.Fit")

	candidates, err := ParameterGrid(g.Grid)
	if err != nil {
		return err
	}
	rows, _ := X.Dims()
	folds, err := g.CV.Split(rows)
	if err != nil {
		return err
	}

	// invalid names are configuration errors, not fit failures
	for _, params := range candidates {
		if err := g.Estimator.Clone().SetParams(params); err != nil {
			return err
		}
	}

	name := estimatorName(g.Estimator)
	nFolds := len(folds)
	scores := make([]float64, len(candidates)*nFolds)
	fitTimes := make([]time.Duration, len(candidates)*nFolds)

	parallel.ParallelizeN(len(scores), g.NJobs, func(task int) {
		c, f := task/nFolds, task%nFolds
		start := time.Now()
		fitErr := errors.SafeExecute("GridSearchCV.fitAndScore", func() error {
			est := g.Estimator.Clone()
			if err := est.SetParams(candidates[c]); err != nil {
				return err
			}
			s, err := fitAndScore(est, X, y, folds[f])
			scores[task] = s
			return err
		})
		fitTimes[task] = time.Since(start)
		if fitErr != nil {
			scores[task] = math.NaN()
			errors.Warn(errors.NewFitFailedWarning(name, FormatParams(candidates[c]), f, fitErr))
		}
	})

	g.CVResults = make([]CandidateResult, len(candidates))
	g.BestIndex = -1
	for c, params := range candidates {
		fs := scores[c*nFolds : (c+1)*nFolds]
		mean, variance := stat.PopMeanVariance(fs, nil)
		var total time.Duration
		for _, d := range fitTimes[c*nFolds : (c+1)*nFolds] {
			total += d
		}
		g.CVResults[c] = CandidateResult{
			Params:        params,
			FoldScores:    append([]float64(nil), fs...),
			MeanTestScore: mean,
			StdTestScore:  math.Sqrt(variance),
			MeanFitTime:   total / time.Duration(nFolds),
		}
		if math.IsNaN(mean) {
			continue
		}
		if g.BestIndex < 0 || mean > g.CVResults[g.BestIndex].MeanTestScore {
			g.BestIndex = c
		}
	}
	rankResults(g.CVResults)

	if g.BestIndex < 0 {
		return errors.NewModelError("GridSearchCV.Fit", "all fits failed",
			errors.Newf("%d candidates x %d folds of %s failed", len(candidates), nFolds, name))
	}
	best := g.CVResults[g.BestIndex]
	g.BestScore = best.MeanTestScore
	g.BestParams = best.Params

	log.GetLoggerWithName("model_selection").Debug("grid search finished",
		log.ModelNameKey, name,
		log.CandidatesKey, len(candidates),
		log.CVFoldsKey, nFolds,
		log.CVScoreKey, g.BestScore,
		log.BestParamsKey, FormatParams(g.BestParams),
	)

	if !g.Refit {
		return nil
	}
	est := g.Estimator.Clone()
	if err := est.SetParams(g.BestParams); err != nil {
		return err
	}
	if err := est.Fit(X, y); err != nil {
		return errors.Wrapf(err, "refit %s with %s", name, FormatParams(g.BestParams))
	}
	g.BestEstimator = est
	return nil
}

// Predict uses the refitted best estimator.
func (g *GridSearchCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if g.BestEstimator == nil {
		return nil, errors.NewNotFittedError("GridSearchCV", "Predict")
	}
	return g.BestEstimator.Predict(X)
}

// Score returns the R² of the refitted best estimator.
func (g *GridSearchCV) Score(X, y mat.Matrix) (float64, error) {
	if g.BestEstimator == nil {
		return 0, errors.NewNotFittedError("GridSearchCV", "Score")
	}
	return g.BestEstimator.Score(X, y)
}

// rankResults assigns rank 1 to the best mean score. Equal scores share a
// rank and NaN scores rank last.
func rankResults(results []CandidateResult) {
	for i := range results {
		mi := results[i].MeanTestScore
		if math.IsNaN(mi) {
			results[i].Rank = len(results)
			continue
		}
		rank := 1
		for j := range results {
			if mj := results[j].MeanTestScore; !math.IsNaN(mj) && mj > mi {
				rank++
			}
		}
		results[i].Rank = rank
	}
}

func estimatorName(est model.Regressor) string {
	name := fmt.Sprintf("%T", est)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
