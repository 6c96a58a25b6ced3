// Package config loads the trainer configuration from a YAML file, a
// .env file and MLOPS_* environment variables, in increasing precedence.
package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mlops-project/trainer/pipeline"
	"github.com/mlops-project/trainer/pkg/errors"
	"github.com/mlops-project/trainer/pkg/log"
	ms "github.com/mlops-project/trainer/sklearn/model_selection"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MLOPS_"

// Config is the full trainer configuration.
type Config struct {
	Trainer TrainerConfig `yaml:"trainer"`
	Data    DataConfig    `yaml:"data"`
	Log     LogConfig     `yaml:"log"`
	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Report struct {
		PlotPath string `yaml:"plot_path"`
	} `yaml:"report"`

	// Models overrides the grid of the named registry entries.
	Models map[string]map[string][]interface{} `yaml:"models"`
	// Only restricts the run to the named registry entries.
	Only []string `yaml:"only"`
}

// TrainerConfig holds the model selection settings.
type TrainerConfig struct {
	ModelPath   string  `yaml:"model_path"`
	MinScore    float64 `yaml:"min_score"`
	CVFolds     int     `yaml:"cv_folds"`
	NJobs       int     `yaml:"n_jobs"`
	RandomState int64   `yaml:"random_state"`
}

// DataConfig locates the pre-split CSV arrays. The target is the last column.
type DataConfig struct {
	TrainPath   string `yaml:"train_path"`
	TestPath    string `yaml:"test_path"`
	Header      bool   `yaml:"header"`
	Standardize bool   `yaml:"standardize"`
}

// LogConfig is passed to log.SetupLogger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := pipeline.DefaultModelTrainerConfig()
	c := &Config{
		Trainer: TrainerConfig{
			ModelPath:   d.TrainedModelFilePath,
			MinScore:    d.MinScore,
			CVFolds:     d.CVFolds,
			NJobs:       d.NJobs,
			RandomState: d.RandomState,
		},
		Data: DataConfig{
			TrainPath: filepath.Join("artifacts", "train.csv"),
			TestPath:  filepath.Join("artifacts", "test.csv"),
			Header:    true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
	c.History.Path = filepath.Join("artifacts", "history.db")
	return c
}

// Load reads path on top of the defaults, then the .env file (when present)
// and the MLOPS_* environment. An empty path skips the YAML file. The result
// is validated.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides scalar keys from lookup. The variable name is the
// upper-cased key path joined by underscores, e.g. MLOPS_TRAINER_MIN_SCORE.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			return errors.NewValidationError(EnvPrefix+key, "cannot parse value", v)
		}
		return nil
	}
	intVar := func(dst *int) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.Atoi(s); return }
	}
	boolVar := func(dst *bool) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.ParseBool(s); return }
	}

	str("TRAINER_MODEL_PATH", &c.Trainer.ModelPath)
	str("DATA_TRAIN_PATH", &c.Data.TrainPath)
	str("DATA_TEST_PATH", &c.Data.TestPath)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HISTORY_PATH", &c.History.Path)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	str("REPORT_PLOT_PATH", &c.Report.PlotPath)

	parsers := []struct {
		key string
		set func(string) error
	}{
		{"TRAINER_MIN_SCORE", func(s string) (err error) { c.Trainer.MinScore, err = strconv.ParseFloat(s, 64); return }},
		{"TRAINER_CV_FOLDS", intVar(&c.Trainer.CVFolds)},
		{"TRAINER_N_JOBS", intVar(&c.Trainer.NJobs)},
		{"TRAINER_RANDOM_STATE", func(s string) (err error) { c.Trainer.RandomState, err = strconv.ParseInt(s, 10, 64); return }},
		{"DATA_HEADER", boolVar(&c.Data.Header)},
		{"DATA_STANDARDIZE", boolVar(&c.Data.Standardize)},
	}
	for _, p := range parsers {
		if err := parse(p.key, p.set); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "ONLY"); ok && strings.TrimSpace(v) != "" {
		c.Only = nil
		for _, name := range strings.Split(v, ",") {
			c.Only = append(c.Only, strings.TrimSpace(name))
		}
	}
	return nil
}

// Validate checks the configuration, including that every grid override
// names a registry model.
func (c *Config) Validate() error {
	if c.Trainer.ModelPath == "" {
		return errors.NewValidationError("trainer.model_path", "is required", c.Trainer.ModelPath)
	}
	if math.IsNaN(c.Trainer.MinScore) || math.IsInf(c.Trainer.MinScore, 0) {
		return errors.NewValidationError("trainer.min_score", "must be finite", c.Trainer.MinScore)
	}
	if c.Trainer.CVFolds < 2 {
		return errors.NewValidationError("trainer.cv_folds", "must be >= 2", c.Trainer.CVFolds)
	}
	if _, err := log.ToLogLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}

	entries, err := c.Registry()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, ok := c.Models[e.Name]; !ok {
			continue
		}
		candidates, err := ms.ParameterGrid(e.Grid)
		if err != nil {
			return errors.Wrapf(err, "models.%s", e.Name)
		}
		for _, params := range candidates {
			if err := e.New().SetParams(params); err != nil {
				return errors.Wrapf(err, "models.%s", e.Name)
			}
		}
	}
	return nil
}

// ModelTrainerConfig returns the pipeline configuration.
func (c *Config) ModelTrainerConfig() pipeline.ModelTrainerConfig {
	return pipeline.ModelTrainerConfig{
		TrainedModelFilePath: c.Trainer.ModelPath,
		MinScore:             c.Trainer.MinScore,
		CVFolds:              c.Trainer.CVFolds,
		NJobs:                c.Trainer.NJobs,
		RandomState:          c.Trainer.RandomState,
	}
}

// Registry returns the default registry with the grid overrides applied and
// restricted to Only when set.
func (c *Config) Registry() ([]pipeline.RegistryEntry, error) {
	entries := pipeline.NewRegistry(c.Trainer.RandomState, c.Trainer.NJobs)
	overrides := make(map[string]ms.ParamGrid, len(c.Models))
	for name, grid := range c.Models {
		overrides[name] = ms.ParamGrid(grid)
	}
	entries, err := pipeline.ApplyGridOverrides(entries, overrides)
	if err != nil {
		return nil, err
	}
	return pipeline.Select(entries, c.Only)
}
