package main

import (
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/report"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate RUNFILE...",
		Short: "Score existing run files against the qrels",
		Long: `Score one or more TREC run files without touching any index.
Each file is reported under the model named by its run tag.

Examples:
  rice-eval evaluate bm25.run lmd.run --qrels test.tsv
  rice-eval evaluate bm25.run --ks 5,10,20 --format markdown`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}

			reports, err := evaluateFiles(cmd.Context(), a, args)
			if err != nil {
				return err
			}

			return report.Write(cmd.OutOrStdout(), a.cfg.Report.Format, reports)
		},
	}

	cmd.Flags().IntSlice("ks", nil, "nDCG cutoffs (default 10,100)")
	cmd.Flags().String("history", "", "history store (memory, redis, none)")

	return cmd
}
