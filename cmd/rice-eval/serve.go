package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/server"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP API",
		Long: `Serve the evaluation API:
  POST /v1/evaluation/runs      score a posted run file (?ks=10,100&tag=NAME)
  GET  /v1/evaluation/qrels     describe the loaded judgments
  GET  /v1/evaluation/history   list stored reports (?model=&limit=)
  GET  /healthz                 liveness
  GET  /metrics                 Prometheus metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port (default from config)")
	cmd.Flags().String("host", "", "HTTP server host (default from config)")
	cmd.Flags().IntSlice("ks", nil, "default nDCG cutoffs")
	cmd.Flags().String("history", "", "history store (memory, redis, none)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	judgments, err := a.loadQrels()
	if err != nil {
		return err
	}

	history, err := a.openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	srv := server.New(server.Config{
		Host:      a.cfg.Server.Host,
		Port:      a.cfg.Server.Port,
		Version:   version,
		Cutoffs:   a.cfg.Evaluation.Cutoffs,
		RateLimit: a.cfg.Server.RateLimit,
	}, judgments, history, metrics.New(), a.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
