package main

import (
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/report"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored evaluation reports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}

			history, err := a.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")

			reports, err := history.List(cmd.Context(), report.Filter{Model: model, Limit: limit})
			if err != nil {
				return err
			}

			return report.Write(cmd.OutOrStdout(), a.cfg.Report.Format, reports)
		},
	}

	cmd.Flags().String("model", "", "only reports for this model")
	cmd.Flags().Int("limit", 20, "maximum number of reports")
	cmd.Flags().String("history", "", "history store (memory, redis, none)")

	return cmd
}
