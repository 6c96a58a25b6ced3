// Standard attribute keys for training runs.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that log lines from different components can be filtered the same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the candidate model, e.g. "Random Forest".
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies a specific estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"

	// RunIDKey identifies a single InitiateModelTrainer invocation.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	TargetsKey  = "data.targets"
	PathKey     = "data.path"
)

// Performance and scores.
const (
	DurationMsKey      = "perf.duration_ms"
	DurationSecondsKey = "perf.duration_seconds"

	// R2ScoreKey records the coefficient of determination on the test split.
	R2ScoreKey = "metrics.r2_score"

	// CVScoreKey records the mean cross-validation score of a candidate.
	CVScoreKey = "metrics.cv_score"

	// IterationKey records the boosting round or tree index.
	IterationKey = "training.iteration"
)

// Model selection.
const (
	// CVFoldsKey records the number of cross-validation folds.
	CVFoldsKey = "selection.cv_folds"

	// CandidatesKey records the number of parameter combinations searched.
	CandidatesKey = "selection.candidates"

	// BestParamsKey records the winning hyperparameter combination.
	BestParamsKey = "selection.best_params"

	// ThresholdKey records the quality gate applied to the best model.
	ThresholdKey = "selection.threshold"

	// ArtifactPathKey records where the selected model was persisted.
	ArtifactPathKey = "artifact.path"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters.
const (
	HyperParamsKey  = "model.hyperparams"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationSearch  = "grid_search"
	OperationPersist = "persist"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseSelection  = "selection"
	PhaseInference  = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorBelowThreshold    = "BELOW_THRESHOLD"
)
