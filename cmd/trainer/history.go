package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlops-project/trainer/pipeline/history"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded training runs, newest first, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(root.cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				run, err := store.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "id\t%s\nstatus\t%s\nstarted\t%s\nbest\t%s\t%.6f\n",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339), run.BestModel, run.BestScore)
				names := make([]string, 0, len(run.Scores))
				for name := range run.Scores {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "score\t%s\t%.6f\n", name, run.Scores[name])
				}
				if run.Error != "" {
					fmt.Fprintf(w, "error\t%s\n", run.Error)
				}
				return nil
			}

			runs, err := store.List(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tBEST MODEL\tSCORE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.6f\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.Status, r.BestModel, r.BestScore)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	return cmd
}
