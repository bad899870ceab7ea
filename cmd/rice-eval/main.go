// Package main provides the rice-eval command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rice-eval",
		Short: "Rice Eval - ranked retrieval evaluation with nDCG",
		Long: `Rice Eval indexes a document corpus, runs every configured scoring model
over a query set, writes TREC run files and scores them against relevance
judgments with nDCG@10 and nDCG@100.

Run 'rice-eval run' for a full evaluation session.
Run 'rice-eval evaluate RUNFILE...' to re-score existing run files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("format", "", "report format (text, markdown, json)")
	rootCmd.PersistentFlags().String("qrels", "", "qrels TSV path (overrides config)")

	rootCmd.AddCommand(
		runCmd(),
		evaluateCmd(),
		serveCmd(),
		historyCmd(),
		replayCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rice-eval %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
