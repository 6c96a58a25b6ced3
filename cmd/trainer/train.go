package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/mlops-project/trainer/dataset"
	"github.com/mlops-project/trainer/pipeline"
	"github.com/mlops-project/trainer/pipeline/history"
	"github.com/mlops-project/trainer/pipeline/telemetry"
	"github.com/mlops-project/trainer/pkg/config"
	"github.com/mlops-project/trainer/preprocessing"
)

func newTrainCmd(root *rootOptions) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Evaluate every candidate model and persist the best one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if len(only) > 0 {
				cfg.Only = only
			}
			return runTrain(cmd, cfg)
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict the run to these model names")
	return cmd
}

func runTrain(cmd *cobra.Command, cfg *config.Config) error {
	train, err := dataset.LoadCSV(cfg.Data.TrainPath, cfg.Data.Header)
	if err != nil {
		return err
	}
	test, err := dataset.LoadCSV(cfg.Data.TestPath, cfg.Data.Header)
	if err != nil {
		return err
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	opts := []pipeline.TrainerOption{pipeline.WithRegistry(registry)}

	if cfg.Data.Standardize {
		var scaler *preprocessing.StandardScaler
		if train, test, scaler, err = standardize(train, test); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithScaler(scaler))
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithHistory(store))
	}
	if cfg.Metrics.Textfile != "" {
		opts = append(opts, pipeline.WithTelemetry(telemetry.New(), cfg.Metrics.Textfile))
	}
	if cfg.Report.PlotPath != "" {
		opts = append(opts, pipeline.WithChartPath(cfg.Report.PlotPath))
	}

	trainer := pipeline.NewModelTrainer(cfg.ModelTrainerConfig(), opts...)
	score, err := trainer.InitiateModelTrainer(train, test)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range trainer.LastReport() {
		fmt.Fprintf(out, "%-20s test_r2=%.6f cv_r2=%.6f\n", s.Name, s.TestScore, s.CVScore)
	}
	fmt.Fprintf(out, "best: %s r2=%.6f -> %s\n", trainer.BestModelName(), score, cfg.Trainer.ModelPath)
	return nil
}

// standardize fits a scaler on the training features and applies it to the
// features of both arrays. The target column is left untouched.
func standardize(train, test *mat.Dense) (*mat.Dense, *mat.Dense, *preprocessing.StandardScaler, error) {
	if err := dataset.CheckCompatible(train, test); err != nil {
		return nil, nil, nil, err
	}
	XTrain, _, err := dataset.SplitFeaturesTarget(train)
	if err != nil {
		return nil, nil, nil, err
	}
	XTest, _, err := dataset.SplitFeaturesTarget(test)
	if err != nil {
		return nil, nil, nil, err
	}

	scaler := preprocessing.NewStandardScalerDefault()
	scaledTrain, err := scaler.FitTransform(XTrain)
	if err != nil {
		return nil, nil, nil, err
	}
	scaledTest, err := scaler.Transform(XTest)
	if err != nil {
		return nil, nil, nil, err
	}
	return withFeatures(train, scaledTrain), withFeatures(test, scaledTest), scaler, nil
}

func withFeatures(m *mat.Dense, X mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := X.Dims()
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(X)
	return out
}
