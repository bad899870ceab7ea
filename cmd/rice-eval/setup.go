package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/lines"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/report"
)

// app is the configuration and logger shared by every command.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

// loadApp loads the config file and environment, applies command line
// overrides and validates the result.
func loadApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	return &app{cfg: cfg, log: logger.New(level, cfg.Log.Format)}, nil
}

// applyFlags copies every flag the user set onto cfg. Flags a command does
// not define are never Changed.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("format", func() (e error) { cfg.Report.Format, e = flags.GetString("format"); return })
	set("qrels", func() (e error) { cfg.Data.QrelsPath, e = flags.GetString("qrels"); return })
	set("backend", func() (e error) { cfg.Index.Backend, e = flags.GetString("backend"); return })
	set("top-k", func() (e error) { cfg.Retrieval.TopK, e = flags.GetInt("top-k"); return })
	set("workers", func() (e error) { cfg.Retrieval.Workers, e = flags.GetInt("workers"); return })
	set("run-dir", func() (e error) { cfg.Data.RunDir, e = flags.GetString("run-dir"); return })
	set("corpus", func() (e error) { cfg.Data.CorpusPaths, e = flags.GetStringSlice("corpus"); return })
	set("queries", func() (e error) { cfg.Data.QueriesPath, e = flags.GetString("queries"); return })
	set("parallel-models", func() (e error) { cfg.Retrieval.ParallelModels, e = flags.GetBool("parallel-models"); return })
	set("ks", func() (e error) { cfg.Evaluation.Cutoffs, e = flags.GetIntSlice("ks"); return })
	set("history", func() (e error) { cfg.Report.History, e = flags.GetString("history"); return })
	set("journal", func() (e error) { cfg.Bus.EventLog, e = flags.GetString("journal"); return })
	set("host", func() (e error) { cfg.Server.Host, e = flags.GetString("host"); return })
	set("port", func() (e error) { cfg.Server.Port, e = flags.GetInt("port"); return })

	return err
}

// loadQrels reads the configured judgments and logs skipped lines.
func (a *app) loadQrels() (*qrels.Store, error) {
	store, diags, err := qrels.Load(a.cfg.Data.QrelsPath)
	lines.Log(a.log, diags)
	if err != nil {
		return nil, err
	}

	a.log.Info("Qrels loaded",
		"path", a.cfg.Data.QrelsPath,
		"topics", len(store.Topics()),
		"judgments", store.Len(),
		"skipped", len(diags),
	)
	return store, nil
}

// openHistory opens the configured report history store.
func (a *app) openHistory() (report.History, error) {
	history, err := report.NewHistory(a.cfg.Report)
	if err != nil {
		return nil, err
	}

	if a.cfg.Report.History == "redis" {
		a.log.Debug("History store opened", "store", "redis", "url", security.MaskURL(a.cfg.Report.RedisURL))
	} else {
		a.log.Debug("History store opened", "store", a.cfg.Report.History)
	}
	return history, nil
}
