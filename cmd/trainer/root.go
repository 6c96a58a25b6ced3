package main

import (
	"github.com/spf13/cobra"

	"github.com/mlops-project/trainer/pkg/config"
	"github.com/mlops-project/trainer/pkg/log"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "trainer",
		Short:         "Select and persist the best regression model",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")

	cmd.AddCommand(
		newTrainCmd(opts),
		newPredictCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}
