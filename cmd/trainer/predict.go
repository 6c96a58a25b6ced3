package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlops-project/trainer/dataset"
	"github.com/mlops-project/trainer/pipeline"
)

func newPredictCmd(root *rootOptions) *cobra.Command {
	var modelPath string
	var header bool
	cmd := &cobra.Command{
		Use:   "predict <features.csv>",
		Short: "Predict one value per row of a feature-only CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" {
				modelPath = root.cfg.Trainer.ModelPath
			}
			if !cmd.Flags().Changed("header") {
				header = root.cfg.Data.Header
			}
			X, err := dataset.LoadCSV(args[0], header)
			if err != nil {
				return err
			}
			pred, err := pipeline.Predict(modelPath, X)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			n, _ := pred.Dims()
			for i := 0; i < n; i++ {
				fmt.Fprintf(out, "%g\n", pred.At(i, 0))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model artifact (default trainer.model_path)")
	cmd.Flags().BoolVar(&header, "header", true, "the CSV file starts with a header row")
	return cmd
}
