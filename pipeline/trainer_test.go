package pipeline

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/core/model"
	"github.com/mlops-project/trainer/pipeline/history"
	"github.com/mlops-project/trainer/pipeline/telemetry"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	"github.com/mlops-project/trainer/preprocessing"
	ms "github.com/mlops-project/trainer/sklearn/model_selection"
)

// linearArray returns n rows of 5 standard normal features followed by a
// linear target with a little noise.
func linearArray(n int, seed uint64) *mat.Dense {
	r := rand.New(rand.NewPCG(seed, seed))
	w := []float64{3, -2, 1, 0.5, -1}
	m := mat.NewDense(n, 6, nil)
	for i := 0; i < n; i++ {
		y := 4.0
		for j, wj := range w {
			x := r.NormFloat64()
			m.Set(i, j, x)
			y += wj * x
		}
		m.Set(i, 5, y+0.01*r.NormFloat64())
	}
	return m
}

// noiseArray returns n rows whose target is independent of the features.
func noiseArray(n int, seed uint64) *mat.Dense {
	r := rand.New(rand.NewPCG(seed, seed))
	m := mat.NewDense(n, 6, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 6; j++ {
			m.Set(i, j, r.NormFloat64())
		}
	}
	return m
}

func fastRegistry(t *testing.T) []RegistryEntry {
	t.Helper()
	entries, err := Select(Registry(), []string{DecisionTree, LinearRegression, KNeighbors})
	require.NoError(t, err)
	return entries
}

func testConfig(t *testing.T) ModelTrainerConfig {
	cfg := DefaultModelTrainerConfig()
	cfg.TrainedModelFilePath = filepath.Join(t.TempDir(), "artifacts", "model.pkl")
	return cfg
}

func quietWarnings(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
}

func TestDefaultModelTrainerConfig(t *testing.T) {
	cfg := DefaultModelTrainerConfig()
	assert.Equal(t, filepath.Join("artifacts", "model.pkl"), cfg.TrainedModelFilePath)
	assert.Equal(t, 0.6, cfg.MinScore)
	assert.Equal(t, 3, cfg.CVFolds)
	assert.NoError(t, cfg.Validate())
}

func TestPassesGate(t *testing.T) {
	tests := []struct {
		score float64
		want  bool
	}{
		{0.6, false},
		{0.600001, true},
		{0.59, false},
		{0.99, true},
		{math.NaN(), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, passesGate(tt.score, 0.6), "score %v", tt.score)
	}
}

func TestReport_Best(t *testing.T) {
	nanFirst := Report{{Name: "a", TestScore: math.NaN()}, {Name: "b", TestScore: 0.9}}
	best, ok := nanFirst.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.Name, "a NaN score never wins")

	_, ok = Report{{Name: "a", TestScore: math.NaN()}}.Best()
	assert.False(t, ok)

	r := Report{
		{Name: "a", TestScore: 0.5},
		{Name: "b", TestScore: 0.7},
		{Name: "c", TestScore: 0.7},
	}
	best, ok = r.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.Name, "the first maximum wins")
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.7, "c": 0.7}, r.Scores())

	_, ok = Report{}.Best()
	assert.False(t, ok)

	got, ok := r.Get("c")
	require.True(t, ok)
	assert.Equal(t, 0.7, got.TestScore)
}

func TestInitiateModelTrainer_LinearScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("fits every registry model")
	}
	quietWarnings(t)
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg)

	score, err := trainer.InitiateModelTrainer(linearArray(100, 1), linearArray(30, 2))
	require.NoError(t, err)
	assert.Greater(t, score, 0.95)

	_, err = os.Stat(cfg.TrainedModelFilePath)
	assert.NoError(t, err)

	report := trainer.LastReport()
	var got, want []string
	for name := range report.Scores() {
		got = append(got, name)
	}
	for _, e := range Registry() {
		want = append(want, e.Name)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)

	best, _ := report.Best()
	assert.Equal(t, best.Name, trainer.BestModelName())
	assert.InDelta(t, best.TestScore, score, 1e-12)
}

func TestInitiateModelTrainer_NoiseScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("fits every registry model")
	}
	quietWarnings(t)
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg)

	score, err := trainer.InitiateModelTrainer(noiseArray(100, 3), noiseArray(30, 4))
	require.Error(t, err)
	assert.Zero(t, score)
	assert.True(t, errors.Is(err, errors.ErrNoBestModel))
	assert.Len(t, trainer.LastReport(), len(Registry()))

	_, statErr := os.Stat(cfg.TrainedModelFilePath)
	assert.True(t, os.IsNotExist(statErr), "no artifact may be written")
}

func TestInitiateModelTrainer_SelectsLinearModel(t *testing.T) {
	quietWarnings(t)
	cfg := testConfig(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	trainer := NewModelTrainer(cfg, WithRegistry(fastRegistry(t)), WithLogger(logger))

	score, err := trainer.InitiateModelTrainer(linearArray(100, 1), linearArray(30, 2))
	require.NoError(t, err)
	assert.Greater(t, score, 0.95)
	assert.Equal(t, LinearRegression, trainer.BestModelName())
	assert.Len(t, trainer.LastReport(), 3)

	meta, err := model.ReadMetadata(cfg.TrainedModelFilePath)
	require.NoError(t, err)
	assert.Equal(t, LinearRegression, meta.ModelName)
	assert.Equal(t, 5, meta.NFeatures)

	assert.True(t, logger.ContainsMessage("Splitting training and testing input data"))
	assert.True(t, logger.ContainsMessage("Best model found"))
}

func TestInitiateModelTrainer_NoiseFailsGate(t *testing.T) {
	quietWarnings(t)
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg, WithRegistry(fastRegistry(t)))

	score, err := trainer.InitiateModelTrainer(noiseArray(100, 3), noiseArray(30, 4))
	require.Error(t, err)
	assert.Zero(t, score)

	var te *errors.TrainerError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, errors.ErrNoBestModel))
	assert.Equal(t, "trainer.go", te.File)
	assert.Contains(t, te.Message, "no best model found")

	_, statErr := os.Stat(cfg.TrainedModelFilePath)
	assert.True(t, os.IsNotExist(statErr), "no artifact may be written")
	assert.Len(t, trainer.LastReport(), 3)
}

func TestInitiateModelTrainer_GateBoundary(t *testing.T) {
	entries, err := Select(Registry(), []string{LinearRegression})
	require.NoError(t, err)
	train, test := linearArray(60, 5), linearArray(20, 6)

	cfg := testConfig(t)
	score, err := NewModelTrainer(cfg, WithRegistry(entries)).InitiateModelTrainer(train, test)
	require.NoError(t, err)

	cfg.MinScore = score
	_, err = NewModelTrainer(cfg, WithRegistry(entries)).InitiateModelTrainer(train, test)
	assert.True(t, errors.Is(err, errors.ErrNoBestModel), "a score equal to the threshold is rejected")

	cfg.MinScore = score - 1e-6
	_, err = NewModelTrainer(cfg, WithRegistry(entries)).InitiateModelTrainer(train, test)
	assert.NoError(t, err)
}

func TestInitiateModelTrainer_PersistenceRoundTrip(t *testing.T) {
	quietWarnings(t)
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg, WithRegistry(fastRegistry(t)))
	test := linearArray(30, 2)

	_, err := trainer.InitiateModelTrainer(linearArray(100, 1), test)
	require.NoError(t, err)

	XTest := mat.DenseCopyOf(test.Slice(0, 30, 0, 5))
	best, _ := trainer.LastReport().Best()
	want, err := best.Model.Predict(XTest)
	require.NoError(t, err)

	got, err := Predict(cfg.TrainedModelFilePath, XTest)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	loaded, err := model.LoadPath(cfg.TrainedModelFilePath)
	require.NoError(t, err)
	assert.IsType(t, best.Model, loaded)
}

func TestPredict_ChecksumMismatch(t *testing.T) {
	cfg := testConfig(t)
	entries, _ := Select(Registry(), []string{LinearRegression})
	_, err := NewModelTrainer(cfg, WithRegistry(entries)).InitiateModelTrainer(linearArray(40, 1), linearArray(10, 2))
	require.NoError(t, err)

	f, err := os.OpenFile(cfg.TrainedModelFilePath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Predict(cfg.TrainedModelFilePath, mat.NewDense(1, 5, nil))
	var me *errors.ModelError
	assert.True(t, errors.As(err, &me))
}

func TestInitiateModelTrainer_Deterministic(t *testing.T) {
	quietWarnings(t)
	entries, err := ApplyGridOverrides(Registry(), map[string]ms.ParamGrid{
		RandomForest: {"n_estimators": {8, 16}},
		XGBoost:      {"n_estimators": {8}, "learning_rate": {0.1}},
	})
	require.NoError(t, err)
	entries, err = Select(entries, []string{RandomForest, XGBoost, KNeighbors})
	require.NoError(t, err)

	run := func() Report {
		cfg := testConfig(t)
		cfg.NJobs = -1
		trainer := NewModelTrainer(cfg, WithRegistry(entries))
		_, err := trainer.InitiateModelTrainer(linearArray(80, 7), linearArray(20, 8))
		require.NoError(t, err)
		return trainer.LastReport()
	}
	a, b := run(), run()
	assert.Equal(t, a.Scores(), b.Scores())
	for i := range a {
		assert.Equal(t, a[i].BestParams, b[i].BestParams)
	}
}

func TestInitiateModelTrainer_DimensionMismatch(t *testing.T) {
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg, WithRegistry(fastRegistry(t)))

	_, err := trainer.InitiateModelTrainer(linearArray(10, 1), mat.NewDense(5, 4, nil))
	var te *errors.TrainerError
	require.True(t, errors.As(err, &te))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "dataset.go", te.File)
	assert.True(t, strings.HasPrefix(err.Error(), "error occurred in source file [dataset.go] line number ["))
}

func TestInitiateModelTrainer_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.CVFolds = 1
	_, err := NewModelTrainer(cfg, WithRegistry(fastRegistry(t))).InitiateModelTrainer(linearArray(10, 1), linearArray(5, 2))

	var te *errors.TrainerError
	require.True(t, errors.As(err, &te))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestInitiateModelTrainer_PanicIsWrapped(t *testing.T) {
	entries := []RegistryEntry{{
		Name: "Broken",
		New:  func() model.Regressor { panic("factory exploded") },
	}}
	_, err := NewModelTrainer(testConfig(t), WithRegistry(entries)).InitiateModelTrainer(linearArray(10, 1), linearArray(5, 2))

	var te *errors.TrainerError
	require.True(t, errors.As(err, &te))
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "factory exploded", pe.PanicValue)
}

func TestInitiateModelTrainer_Hooks(t *testing.T) {
	dir := t.TempDir()
	store, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer store.Close()
	metrics := telemetry.New()
	textfile := filepath.Join(dir, "metrics", "trainer.prom")
	chartPath := filepath.Join(dir, "reports", "scores.svg")

	entries, _ := Select(Registry(), []string{LinearRegression, KNeighbors})
	cfg := testConfig(t)
	trainer := NewModelTrainer(cfg,
		WithRegistry(entries),
		WithHistory(store),
		WithTelemetry(metrics, textfile),
		WithChartPath(chartPath),
	)

	score, err := trainer.InitiateModelTrainer(linearArray(60, 1), linearArray(20, 2))
	require.NoError(t, err)

	run, err := store.Get(trainer.LastRunID())
	require.NoError(t, err)
	assert.Equal(t, history.StatusSucceeded, run.Status)
	assert.Equal(t, LinearRegression, run.BestModel)
	assert.InDelta(t, score, run.BestScore, 1e-12)
	assert.Len(t, run.Scores, 2)
	assert.Equal(t, cfg.TrainedModelFilePath, run.ArtifactPath)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `trainer_runs_total{status="succeeded"} 1`)
	assert.Contains(t, string(data), `trainer_model_test_r2{model="KNeighbors"}`)

	_, err = os.Stat(chartPath)
	assert.NoError(t, err)

	// a failing run is recorded too
	cfg.MinScore = 2
	failing := NewModelTrainer(cfg, WithRegistry(entries), WithHistory(store))
	_, err = failing.InitiateModelTrainer(linearArray(60, 1), linearArray(20, 2))
	require.Error(t, err)

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "no best model found")
}

// scaledArrays standardizes the feature columns of train and test with a
// scaler fitted on train.
func scaledArrays(t *testing.T, train, test *mat.Dense) (*mat.Dense, *mat.Dense, *preprocessing.StandardScaler) {
	t.Helper()
	r, c := train.Dims()
	scaler := preprocessing.NewStandardScalerDefault()
	XTrain, err := scaler.FitTransform(train.Slice(0, r, 0, c-1))
	require.NoError(t, err)
	rt, _ := test.Dims()
	XTest, err := scaler.Transform(test.Slice(0, rt, 0, c-1))
	require.NoError(t, err)

	outTrain, outTest := mat.DenseCopyOf(train), mat.DenseCopyOf(test)
	outTrain.Slice(0, r, 0, c-1).(*mat.Dense).Copy(XTrain)
	outTest.Slice(0, rt, 0, c-1).(*mat.Dense).Copy(XTest)
	return outTrain, outTest, scaler
}

func TestPredict_Standardized(t *testing.T) {
	cfg := testConfig(t)
	entries, _ := Select(Registry(), []string{LinearRegression})
	train, test, scaler := scaledArrays(t, linearArray(60, 1), linearArray(20, 2))

	trainer := NewModelTrainer(cfg, WithRegistry(entries), WithScaler(scaler))
	_, err := trainer.InitiateModelTrainer(train, test)
	require.NoError(t, err)

	meta, err := model.ReadMetadata(cfg.TrainedModelFilePath)
	require.NoError(t, err)
	assert.True(t, meta.Standardized)
	sum, err := model.Checksum(ScalerPath(cfg.TrainedModelFilePath))
	require.NoError(t, err)
	assert.Equal(t, sum, meta.ScalerChecksum)

	raw := mat.DenseCopyOf(linearArray(5, 3).Slice(0, 5, 0, 5))
	scaled, err := scaler.Transform(raw)
	require.NoError(t, err)
	best, _ := trainer.LastReport().Best()
	want, err := best.Model.Predict(scaled)
	require.NoError(t, err)

	got, err := Predict(cfg.TrainedModelFilePath, raw)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// a replaced scaler no longer matches the recorded checksum
	require.NoError(t, model.SavePath(ScalerPath(cfg.TrainedModelFilePath), preprocessing.NewStandardScalerDefault()))
	_, err = Predict(cfg.TrainedModelFilePath, raw)
	var me *errors.ModelError
	assert.True(t, errors.As(err, &me))
}

func TestPredict_UnstandardizedIgnoresScalerFile(t *testing.T) {
	cfg := testConfig(t)
	entries, _ := Select(Registry(), []string{LinearRegression})
	train, test := linearArray(60, 1), linearArray(20, 2)
	_, _, scaler := scaledArrays(t, train, test)

	// left behind by an earlier standardized run
	require.NoError(t, model.SavePath(ScalerPath(cfg.TrainedModelFilePath), scaler))

	trainer := NewModelTrainer(cfg, WithRegistry(entries))
	_, err := trainer.InitiateModelTrainer(train, test)
	require.NoError(t, err)

	_, err = os.Stat(ScalerPath(cfg.TrainedModelFilePath))
	assert.True(t, os.IsNotExist(err), "the stale scaler is removed")

	raw := mat.DenseCopyOf(linearArray(5, 3).Slice(0, 5, 0, 5))
	best, _ := trainer.LastReport().Best()
	want, err := best.Model.Predict(raw)
	require.NoError(t, err)
	got, err := Predict(cfg.TrainedModelFilePath, raw)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestInitiateModelTrainer_MetadataFailureRemovesArtifact(t *testing.T) {
	cfg := testConfig(t)
	entries, _ := Select(Registry(), []string{LinearRegression})

	// a directory where the sidecar should go makes the metadata write fail
	require.NoError(t, os.MkdirAll(filepath.Join(model.MetadataPath(cfg.TrainedModelFilePath), "blocker"), 0o755))

	_, err := NewModelTrainer(cfg, WithRegistry(entries)).InitiateModelTrainer(linearArray(40, 1), linearArray(10, 2))
	var te *errors.TrainerError
	require.True(t, errors.As(err, &te))

	_, statErr := os.Stat(cfg.TrainedModelFilePath)
	assert.True(t, os.IsNotExist(statErr), "no artifact without its metadata")
}
