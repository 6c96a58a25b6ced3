package pipeline

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/dataset"
	"github.com/mlops-project/trainer/metrics"
	"github.com/mlops-project/trainer/pipeline/chart"
	"github.com/mlops-project/trainer/pipeline/history"
	"github.com/mlops-project/trainer/pipeline/telemetry"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	"github.com/mlops-project/trainer/preprocessing"
)

// ModelTrainerConfig configures a ModelTrainer.
type ModelTrainerConfig struct {
	// TrainedModelFilePath is where the selected model is written.
	TrainedModelFilePath string `json:"trained_model_file_path" yaml:"trained_model_file_path"`
	// MinScore is the quality gate: the best test R² must exceed it.
	MinScore    float64 `json:"min_score" yaml:"min_score"`
	CVFolds     int     `json:"cv_folds" yaml:"cv_folds"`
	NJobs       int     `json:"n_jobs" yaml:"n_jobs"`
	RandomState int64   `json:"random_state" yaml:"random_state"`
}

// DefaultModelTrainerConfig writes to artifacts/model.pkl with a 0.6 gate
// and 3-fold cross-validation.
func DefaultModelTrainerConfig() ModelTrainerConfig {
	return ModelTrainerConfig{
		TrainedModelFilePath: filepath.Join("artifacts", "model.pkl"),
		MinScore:             0.6,
		CVFolds:              3,
		NJobs:                1,
	}
}

// Validate checks the configuration.
func (c ModelTrainerConfig) Validate() error {
	if c.TrainedModelFilePath == "" {
		return errors.NewValidationError("trained_model_file_path", "is required", c.TrainedModelFilePath)
	}
	if math.IsNaN(c.MinScore) || math.IsInf(c.MinScore, 0) {
		return errors.NewValidationError("min_score", "must be finite", c.MinScore)
	}
	if c.CVFolds < 2 {
		return errors.NewValidationError("cv_folds", "must be >= 2", c.CVFolds)
	}
	return nil
}

// ModelTrainer selects, gates and persists the best model. A ModelTrainer
// is not safe for concurrent runs.
type ModelTrainer struct {
	config    ModelTrainerConfig
	registry  []RegistryEntry
	logger    log.Logger
	history   *history.Store
	telemetry *telemetry.Metrics
	textfile  string
	chartPath string
	scaler    *preprocessing.StandardScaler

	lastReport    Report
	bestModelName string
	lastRunID     string
}

// TrainerOption configures a ModelTrainer.
type TrainerOption func(*ModelTrainer)

// WithRegistry replaces the default candidates.
func WithRegistry(entries []RegistryEntry) TrainerOption {
	return func(t *ModelTrainer) { t.registry = entries }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) TrainerOption {
	return func(t *ModelTrainer) { t.logger = l }
}

// WithHistory records every run in store.
func WithHistory(store *history.Store) TrainerOption {
	return func(t *ModelTrainer) { t.history = store }
}

// WithTelemetry records run metrics in m and, when textfile is not empty,
// writes them there after each run.
func WithTelemetry(m *telemetry.Metrics, textfile string) TrainerOption {
	return func(t *ModelTrainer) {
		t.telemetry = m
		t.textfile = textfile
	}
}

// WithChartPath saves a bar chart of the test scores after evaluation.
func WithChartPath(path string) TrainerOption {
	return func(t *ModelTrainer) { t.chartPath = path }
}

// WithScaler records that the arrays were standardized with s. The scaler is
// persisted next to the model and Predict applies it before predicting.
func WithScaler(s *preprocessing.StandardScaler) TrainerOption {
	return func(t *ModelTrainer) { t.scaler = s }
}

// ScalerPath is where the feature scaler of a standardized model is stored.
func ScalerPath(modelPath string) string {
	return modelPath + ".scaler"
}

// NewModelTrainer creates a trainer.
func NewModelTrainer(cfg ModelTrainerConfig, opts ...TrainerOption) *ModelTrainer {
	t := &ModelTrainer{config: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("pipeline")
	}
	if t.registry == nil {
		t.registry = NewRegistry(cfg.RandomState, cfg.NJobs)
	}
	return t
}

// Config returns the trainer configuration.
func (t *ModelTrainer) Config() ModelTrainerConfig {
	return t.config
}

// LastReport returns the report of the most recent run that got through
// evaluation.
func (t *ModelTrainer) LastReport() Report {
	return t.lastReport
}

// BestModelName returns the name of the best model of the most recent
// evaluation, whether or not it passed the gate.
func (t *ModelTrainer) BestModelName() string {
	return t.bestModelName
}

// LastRunID returns the id of the most recent run.
func (t *ModelTrainer) LastRunID() string {
	return t.lastRunID
}

// InitiateModelTrainer splits train and test into features and target,
// evaluates every candidate, gates the best one on MinScore, persists it to
// TrainedModelFilePath and returns its test R². Every failure, panics
// included, is returned as a single *errors.TrainerError.
func (t *ModelTrainer) InitiateModelTrainer(train, test mat.Matrix) (score float64, err error) {
	run := &history.Run{ID: history.NewRunID(), StartedAt: time.Now().UTC()}
	t.lastRunID = run.ID
	logger := t.logger.With(log.RunIDKey, run.ID)

	defer func() {
		if err != nil {
			err = errors.NewTrainerError(err)
			score = 0
			logger.Error("training run failed", err)
		}
		t.finishRun(run, score, err, logger)
	}()
	defer errors.Recover(&err, "ModelTrainer.InitiateModelTrainer")

	return t.run(train, test, run, logger)
}

func (t *ModelTrainer) run(train, test mat.Matrix, run *history.Run, logger log.Logger) (float64, error) {
	cfg := t.config
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	logger.Info("Splitting training and testing input data")
	if err := dataset.CheckCompatible(train, test); err != nil {
		return 0, err
	}
	XTrain, yTrain, err := dataset.SplitFeaturesTarget(train)
	if err != nil {
		return 0, err
	}
	XTest, yTest, err := dataset.SplitFeaturesTarget(test)
	if err != nil {
		return 0, err
	}

	report, err := EvaluateModels(XTrain, yTrain, XTest, yTest, t.registry,
		WithCVFolds(cfg.CVFolds),
		WithSearchJobs(cfg.NJobs),
		WithEvalLogger(logger),
	)
	if err != nil {
		return 0, err
	}
	t.lastReport = report
	run.Scores = report.Scores()
	t.observeReport(report, logger)

	best, ok := report.Best()
	t.bestModelName = best.Name
	run.BestModel = best.Name

	if !ok || !passesGate(best.TestScore, cfg.MinScore) {
		logger.Warn("best model below threshold",
			log.ModelNameKey, best.Name,
			log.R2ScoreKey, best.TestScore,
			log.ThresholdKey, cfg.MinScore,
			log.ErrorCodeKey, log.ErrorBelowThreshold,
		)
		return 0, errors.Mark(
			errors.Newf("no best model found: %s scored %.6f, threshold %.6f", best.Name, best.TestScore, cfg.MinScore),
			errors.ErrNoBestModel,
		)
	}
	logger.Info("Best model found",
		log.ModelNameKey, best.Name,
		log.R2ScoreKey, best.TestScore,
		log.BestParamsKey, fmt.Sprint(best.BestParams),
		log.PhaseKey, log.PhaseSelection,
	)

	path := cfg.TrainedModelFilePath
	_, nFeatures := XTrain.Dims()
	meta := &model.ArtifactMetadata{
		ModelName:       best.Name,
		ModelType:       fmt.Sprintf("%T", best.Model),
		TestScore:       best.TestScore,
		TrainScore:      best.TrainScore,
		NFeatures:       nFeatures,
		Hyperparameters: best.BestParams,
	}
	if err := t.persist(path, best.Model, meta); err != nil {
		return 0, err
	}
	run.ArtifactPath = path

	pred, err := best.Model.Predict(XTest)
	if err != nil {
		return 0, err
	}
	r2, err := metrics.R2ScoreMatrix(yTest, pred)
	if err != nil {
		return 0, err
	}
	logger.Info("model persisted",
		log.OperationKey, log.OperationPersist,
		log.ArtifactPathKey, path,
		log.R2ScoreKey, r2,
	)
	return r2, nil
}

// passesGate reports whether score clears the quality gate. A score equal
// to the threshold is rejected.
func passesGate(score, threshold float64) bool {
	return score > threshold
}

// persist writes the scaler (or removes a stale one), the model and its
// metadata. When the metadata cannot be written the new artifact is removed so
// that no model is left without a matching sidecar.
func (t *ModelTrainer) persist(path string, m model.Regressor, meta *model.ArtifactMetadata) error {
	scalerPath := ScalerPath(path)
	if t.scaler != nil {
		if err := model.SavePath(scalerPath, t.scaler); err != nil {
			return err
		}
		sum, err := model.Checksum(scalerPath)
		if err != nil {
			return err
		}
		meta.Standardized = true
		meta.ScalerChecksum = sum
	} else if err := os.Remove(scalerPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "failed to remove stale scaler %s", scalerPath)
	}

	if err := model.SavePath(path, m); err != nil {
		return err
	}
	if err := model.WriteMetadata(path, meta); err != nil {
		os.Remove(path)
		os.Remove(model.MetadataPath(path))
		return err
	}
	return nil
}

func (t *ModelTrainer) observeReport(report Report, logger log.Logger) {
	if t.telemetry != nil {
		for _, s := range report {
			t.telemetry.ObserveModel(s.Name, s.TestScore, s.FitTime)
		}
	}
	if t.chartPath == "" {
		return
	}
	scores := make([]chart.Score, len(report))
	for i, s := range report {
		scores[i] = chart.Score{Name: s.Name, Value: s.TestScore}
	}
	if err := chart.SaveScores(t.chartPath, scores, t.config.MinScore); err != nil {
		logger.Warn("could not save score chart", log.PathKey, t.chartPath, log.ErrAttrKey, err.Error())
	}
}

func (t *ModelTrainer) finishRun(run *history.Run, score float64, err error, logger log.Logger) {
	run.FinishedAt = time.Now().UTC()
	run.Status = history.StatusSucceeded
	if err != nil {
		run.Status = history.StatusFailed
		run.Error = err.Error()
	} else {
		run.BestScore = score
	}

	if t.history != nil {
		if herr := t.history.Record(run); herr != nil {
			logger.Error("could not record run history", herr)
		}
	}
	if t.telemetry != nil {
		t.telemetry.ObserveRun(run.Status, score, run.FinishedAt)
		if t.textfile != "" {
			if terr := t.telemetry.WriteTextfile(t.textfile); terr != nil {
				logger.Error("could not write metrics textfile", terr)
			}
		}
	}
}

// Predict loads the model persisted at modelPath and predicts X. When the
// metadata sidecar exists the artifact checksum is verified first, and a
// model trained on standardized features gets X transformed by its scaler.
// Without a sidecar X is used as is.
func Predict(modelPath string, X mat.Matrix) (mat.Matrix, error) {
	meta, err := model.ReadMetadata(modelPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if meta != nil && meta.Standardized {
		if X, err = applyScaler(ScalerPath(modelPath), meta.ScalerChecksum, X); err != nil {
			return nil, err
		}
	}
	reg, err := model.LoadRegressor(modelPath)
	if err != nil {
		return nil, err
	}
	return reg.Predict(X)
}

func applyScaler(path, checksum string, X mat.Matrix) (mat.Matrix, error) {
	sum, err := model.Checksum(path)
	if err != nil {
		return nil, err
	}
	if sum != checksum {
		return nil, errors.NewModelError("Predict", "scaler checksum mismatch", errors.Newf("expected %s, got %s", checksum, sum))
	}
	obj, err := model.LoadPath(path)
	if err != nil {
		return nil, err
	}
	scaler, ok := obj.(*preprocessing.StandardScaler)
	if !ok {
		return nil, errors.NewModelError("Predict", "invalid scaler", errors.Newf("%s holds %T", path, obj))
	}
	return scaler.Transform(X)
}
