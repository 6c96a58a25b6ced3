package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlops-project/trainer/pipeline"
	"github.com/mlops-project/trainer/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	cfg := c.ModelTrainerConfig()
	assert.Equal(t, pipeline.DefaultModelTrainerConfig(), cfg)

	entries, err := c.Registry()
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
trainer:
  model_path: out/best.pkl
  min_score: 0.7
  cv_folds: 5
data:
  train_path: data/train.csv
  standardize: true
log:
  level: debug
  format: console
models:
  Random Forest:
    n_estimators: [10, 20]
  KNeighbors:
    n_neighbors: [3]
    weights: [uniform, distance]
only: [Random Forest, KNeighbors]
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/best.pkl", c.Trainer.ModelPath)
	assert.Equal(t, 0.7, c.Trainer.MinScore)
	assert.Equal(t, 5, c.Trainer.CVFolds)
	assert.Equal(t, 1, c.Trainer.NJobs, "unset keys keep their defaults")
	assert.True(t, c.Data.Header)
	assert.True(t, c.Data.Standardize)
	assert.Equal(t, "debug", c.Log.Level)

	entries, err := c.Registry()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, pipeline.RandomForest, entries[0].Name)
	assert.Equal(t, 2, entries[0].Grid.Size())
	assert.Equal(t, 2, entries[1].Grid.Size())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "trainer: [1, 2"},
		{"cv folds", "trainer:\n  cv_folds: 1\n"},
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"unknown model", "models:\n  SVR:\n    C: [1]\n"},
		{"unknown param", "models:\n  KNeighbors:\n    leaf_size: [30]\n"},
		{"bad param value", "models:\n  KNeighbors:\n    n_neighbors: [three]\n"},
		{"unknown only", "only: [SVR]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.applyEnv(lookupFrom(map[string]string{
		"MLOPS_TRAINER_MODEL_PATH":   "/tmp/model.pkl",
		"MLOPS_TRAINER_MIN_SCORE":    "0.8",
		"MLOPS_TRAINER_CV_FOLDS":     "4",
		"MLOPS_TRAINER_RANDOM_STATE": "42",
		"MLOPS_DATA_STANDARDIZE":     "true",
		"MLOPS_METRICS_TEXTFILE":     "/tmp/trainer.prom",
		"MLOPS_ONLY":                 "Linear Regression, KNeighbors",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/model.pkl", c.Trainer.ModelPath)
	assert.Equal(t, 0.8, c.Trainer.MinScore)
	assert.Equal(t, 4, c.Trainer.CVFolds)
	assert.Equal(t, int64(42), c.Trainer.RandomState)
	assert.True(t, c.Data.Standardize)
	assert.Equal(t, "/tmp/trainer.prom", c.Metrics.Textfile)
	assert.Equal(t, []string{"Linear Regression", "KNeighbors"}, c.Only)
}

func TestApplyEnv_ParseError(t *testing.T) {
	c := Default()
	err := c.applyEnv(lookupFrom(map[string]string{"MLOPS_TRAINER_CV_FOLDS": "three"}))

	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "MLOPS_TRAINER_CV_FOLDS", ve.ParamName)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "trainer:\n  min_score: 0.7\n")
	t.Setenv("MLOPS_TRAINER_MIN_SCORE", "0.9")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, c.Trainer.MinScore)
}
