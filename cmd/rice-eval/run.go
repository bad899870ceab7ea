package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/index/backend"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pipeline"
	"github.com/ricesearch/rice-eval/internal/report"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index the corpus, run every model and report nDCG",
		Long: `Run a full evaluation session:
- ingest the corpus into the configured index backend
- search every query under each scoring model
- write one TREC run file per model
- reload each run file and score it against the qrels

Reports are printed to stdout; logs go to stderr.`,
		RunE: runPipeline,
	}

	cmd.Flags().String("backend", "", "index backend (memory, elasticsearch, qdrant)")
	cmd.Flags().Int("top-k", 0, "results per query (default from config)")
	cmd.Flags().Int("workers", 0, "concurrent searches per model (default from config)")
	cmd.Flags().String("run-dir", "", "directory for run files")
	cmd.Flags().StringSlice("corpus", nil, "corpus JSONL files")
	cmd.Flags().String("queries", "", "queries JSONL file")
	cmd.Flags().Bool("parallel-models", false, "evaluate models concurrently")
	cmd.Flags().IntSlice("ks", nil, "nDCG cutoffs (default 10,100)")
	cmd.Flags().Bool("progress", true, "show ingestion progress on stderr")

	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	judgments, err := a.loadQrels()
	if err != nil {
		return err
	}

	m := metrics.New()

	eventBus, err := bus.NewBus(a.cfg.Bus, a.log)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	history, err := a.openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	idx, err := backend.Open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer idx.Close()

	opts := pipeline.Options{
		Bus:      bus.NewInstrumentedBus(eventBus, m),
		History:  history,
		Recorder: m,
	}

	var bar *progressbar.ProgressBar
	if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
		bar = newIngestBar()
		opts.Progress = func(n int) { _ = bar.Set(n) }
	}

	p, err := pipeline.NewPipeline(pipeline.ConfigFrom(a.cfg), idx, judgments, a.log, opts)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	return report.Write(cmd.OutOrStdout(), a.cfg.Report.Format, res.Reports)
}

// newIngestBar is an open-ended spinner since corpus files are streamed
// and their record count is unknown.
func newIngestBar() *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100_000_000),
		progressbar.OptionClearOnFinish(),
	)
}

// evaluateFiles re-scores run files without an index.
func evaluateFiles(ctx context.Context, a *app, paths []string) ([]*report.ModelReport, error) {
	judgments, err := a.loadQrels()
	if err != nil {
		return nil, err
	}

	eventBus, err := bus.NewBus(a.cfg.Bus, a.log)
	if err != nil {
		return nil, err
	}
	defer eventBus.Close()

	history, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	defer history.Close()

	p, err := pipeline.NewPipeline(pipeline.ConfigFrom(a.cfg), nil, judgments, a.log, pipeline.Options{
		Bus:     eventBus,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	return p.EvaluateRunFiles(ctx, paths)
}
