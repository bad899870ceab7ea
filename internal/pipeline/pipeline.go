// Package pipeline sequences a full evaluation session: ingest the corpus,
// run every scoring model over the queries, write and reload each run file,
// and score it against the judgments.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/lines"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/report"
	"github.com/ricesearch/rice-eval/internal/retrieval"
	"github.com/ricesearch/rice-eval/internal/runfile"
)

const source = "pipeline"

// Config configures an evaluation session.
type Config struct {
	// CorpusPaths are JSONL corpus files ingested in order.
	CorpusPaths []string

	// QueriesPath is the JSONL query file.
	QueriesPath string

	// RunDir receives one <model>.run file per model.
	RunDir string

	// Models are evaluated in this order.
	Models []index.Model

	// Cutoffs are the nDCG depths. Empty means 10 and 100.
	Cutoffs []int

	// Retrieval controls run depth and per-model parallelism.
	Retrieval retrieval.Config

	// ParallelModels runs the models concurrently.
	ParallelModels bool
}

// ConfigFrom extracts the pipeline settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		CorpusPaths: cfg.Data.CorpusPaths,
		QueriesPath: cfg.Data.QueriesPath,
		RunDir:      cfg.Data.RunDir,
		Models:      index.ModelsFromConfig(cfg.Models),
		Cutoffs:     cfg.Evaluation.Cutoffs,
		Retrieval: retrieval.Config{
			TopK:      cfg.Retrieval.TopK,
			Workers:   cfg.Retrieval.Workers,
			RateLimit: cfg.Retrieval.RateLimit,
		},
		ParallelModels: cfg.Retrieval.ParallelModels,
	}
}

// Recorder receives pipeline measurements.
type Recorder interface {
	retrieval.Recorder
	RecordIngest(documents, diagnostics int, elapsed time.Duration)
	RecordEvaluation(model string, topics int, meanNDCG map[int]float64)
}

// Options carries the optional collaborators of a pipeline.
type Options struct {
	// Bus receives pipeline events. Nil disables publishing.
	Bus bus.Bus

	// History stores every model report. Nil keeps nothing.
	History report.History

	// Recorder receives metrics. Nil disables recording.
	Recorder Recorder

	// Progress is called after each document is added to the index.
	Progress func(documents int)
}

// IngestResult summarizes corpus ingestion.
type IngestResult struct {
	Documents   int                `json:"documents"`
	Diagnostics []lines.Diagnostic `json:"diagnostics,omitempty"`
	Duration    time.Duration      `json:"duration_ns"`
}

// Result is the outcome of a full session.
type Result struct {
	SessionID string                `json:"session_id"`
	Ingest    *IngestResult         `json:"ingest"`
	Queries   int                   `json:"queries"`
	Reports   []*report.ModelReport `json:"reports"`
	Duration  time.Duration         `json:"duration_ns"`
}

// Pipeline runs evaluation sessions. The index may be nil when the
// pipeline only re-scores existing run files.
type Pipeline struct {
	cfg       Config
	idx       index.Index
	evaluator *evaluation.Evaluator
	opts      Options
	session   string
	log       *logger.Logger
}

// NewPipeline validates the cutoffs and models and returns a pipeline
// bound to a fresh session id.
func NewPipeline(cfg Config, idx index.Index, judgments *qrels.Store, log *logger.Logger, opts Options) (*Pipeline, error) {
	if judgments == nil {
		return nil, errors.ValidationError("judgments are required")
	}
	if _, err := index.NewModelSet(cfg.Models); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid scoring models", err)
	}
	if err := checkRunPaths(cfg.Models); err != nil {
		return nil, err
	}
	if len(cfg.Cutoffs) == 0 {
		cfg.Cutoffs = evaluation.DefaultCutoffs
	}
	evaluator, err := evaluation.NewEvaluator(judgments, cfg.Cutoffs)
	if err != nil {
		return nil, err
	}
	if cfg.RunDir == "" {
		cfg.RunDir = "."
	}
	if opts.History == nil {
		opts.History = report.NopHistory{}
	}
	if log == nil {
		log = logger.Discard()
	}

	session := uuid.NewString()
	return &Pipeline{
		cfg:       cfg,
		idx:       idx,
		evaluator: evaluator,
		opts:      opts,
		session:   session,
		log:       log.WithComponent("pipeline").WithSession(session),
	}, nil
}

// SessionID identifies this pipeline's reports and events.
func (p *Pipeline) SessionID() string {
	return p.session
}

// Run executes a full session: load queries, ingest, then evaluate every
// model.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	queries, diags, err := corpus.LoadQueries(ctx, p.cfg.QueriesPath)
	lines.Log(p.log, diags)
	if err != nil {
		return nil, err
	}
	p.log.Info("Queries loaded", "path", p.cfg.QueriesPath, "queries", len(queries), "skipped", len(diags))

	ingest, err := p.Ingest(ctx)
	if err != nil {
		return nil, err
	}

	reports, err := p.RunModels(ctx, queries)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID: p.session,
		Ingest:    ingest,
		Queries:   len(queries),
		Reports:   reports,
		Duration:  time.Since(start),
	}

	p.log.Info("Session complete",
		"models", len(reports),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// Ingest streams every corpus document into the index, lower-casing its
// text, and commits. Malformed records are skipped and logged.
func (p *Pipeline) Ingest(ctx context.Context) (*IngestResult, error) {
	if p.idx == nil {
		return nil, errors.ValidationError("no index configured")
	}
	if len(p.cfg.CorpusPaths) == 0 {
		return nil, errors.ValidationError("no corpus files configured")
	}

	start := time.Now()
	var added int

	diags, err := corpus.EachDocument(ctx, p.cfg.CorpusPaths, func(doc corpus.Document) error {
		if err := p.idx.Add(ctx, index.Document{ID: doc.ID, Text: strings.ToLower(doc.Text)}); err != nil {
			return err
		}
		added++
		if p.opts.Progress != nil {
			p.opts.Progress(added)
		}
		return nil
	})
	lines.Log(p.log, diags)
	if err != nil {
		return nil, err
	}

	if err := p.idx.Commit(ctx); err != nil {
		return nil, err
	}

	result := &IngestResult{
		Documents:   added,
		Diagnostics: diags,
		Duration:    time.Since(start),
	}

	if p.opts.Recorder != nil {
		p.opts.Recorder.RecordIngest(added, len(diags), result.Duration)
	}

	p.log.Info("Corpus ingested",
		"documents", added,
		"skipped", len(diags),
		"duration_ms", result.Duration.Milliseconds(),
	)

	p.publish(ctx, bus.TopicIndexCommitted, map[string]any{
		"documents":   added,
		"diagnostics": len(diags),
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

// RunModels evaluates every configured model over queries against the
// committed index. Reports follow the configured model order.
func (p *Pipeline) RunModels(ctx context.Context, queries []corpus.Query) ([]*report.ModelReport, error) {
	if p.idx == nil {
		return nil, errors.ValidationError("no index configured")
	}

	reports := make([]*report.ModelReport, len(p.cfg.Models))

	if !p.cfg.ParallelModels {
		for i, m := range p.cfg.Models {
			rep, err := p.runModel(ctx, queries, m)
			if err != nil {
				return nil, err
			}
			reports[i] = rep
		}
		return reports, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range p.cfg.Models {
		g.Go(func() error {
			rep, err := p.runModel(gctx, queries, m)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// runModel searches, writes the run, reloads it and scores the reloaded
// run. The reload is the only input to scoring.
func (p *Pipeline) runModel(ctx context.Context, queries []corpus.Query, model index.Model) (*report.ModelReport, error) {
	start := time.Now()
	log := p.log.WithModel(model.Name)

	var recorder retrieval.Recorder
	if p.opts.Recorder != nil {
		recorder = p.opts.Recorder
	}
	runner := retrieval.NewRunner(p.idx, p.cfg.Retrieval, recorder, p.log)

	results, err := runner.Run(ctx, queries, model.Name)
	if err != nil {
		return nil, err
	}

	path := RunPath(p.cfg.RunDir, model.Name)
	if err := runfile.WriteFile(path, results, model.Name); err != nil {
		return nil, err
	}
	log.Info("Run written", "path", path, "topics", len(results))

	p.publish(ctx, bus.TopicRunWritten, map[string]any{
		"model":  model.Name,
		"path":   path,
		"topics": len(results),
	})

	run, err := runfile.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return p.score(ctx, run, model, path, start)
}

// EvaluateRunFiles re-scores existing run files without touching the index.
// Each file's tag selects the configured model it is reported under.
func (p *Pipeline) EvaluateRunFiles(ctx context.Context, paths []string) ([]*report.ModelReport, error) {
	reports := make([]*report.ModelReport, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		run, err := runfile.ReadFile(path)
		if err != nil {
			return nil, err
		}

		rep, err := p.score(ctx, run, p.modelFor(run.Tag, path), path, start)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// score evaluates run and records, stores and publishes the report.
func (p *Pipeline) score(ctx context.Context, run *runfile.Run, model index.Model, path string, start time.Time) (*report.ModelReport, error) {
	log := p.log.WithModel(model.Name)

	res, err := p.evaluator.Evaluate(run)
	if err != nil {
		return nil, err
	}
	if len(res.Unjudged) > 0 {
		log.Warn("Run topics without judgments", "count", len(res.Unjudged))
	}

	rep := report.FromEvaluation(p.session, model, path, res, time.Since(start))

	if p.opts.Recorder != nil {
		p.opts.Recorder.RecordEvaluation(model.Name, rep.TopicCount, rep.MeanNDCG)
	}

	if err := p.opts.History.Save(ctx, rep.Summary()); err != nil {
		log.Warn("Failed to save report", "error", err)
	}

	args := []any{"topics", rep.TopicCount}
	for _, k := range rep.Cutoffs {
		args = append(args, fmt.Sprintf("ndcg@%d", k), rep.MeanNDCG[k])
	}
	log.Info("Model evaluated", args...)

	p.publish(ctx, bus.TopicEvaluationCompleted, rep.Summary())
	return rep, nil
}

// modelFor finds the configured model named tag, falling back to the file
// name when the run carries no tag.
func (p *Pipeline) modelFor(tag, path string) index.Model {
	if tag == "" {
		tag = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, m := range p.cfg.Models {
		if m.Name == tag {
			return m
		}
	}
	return index.Model{Name: tag}
}

// publish sends an event when a bus is configured. Failures are logged.
func (p *Pipeline) publish(ctx context.Context, topic string, payload any) {
	if p.opts.Bus == nil {
		return
	}

	event := bus.NewEvent(topic, source, p.session, payload)
	if err := p.opts.Bus.Publish(ctx, topic, event); err != nil {
		p.log.Debug("Failed to publish event", "topic", topic, "error", err)
	}
}

// RunPath is the run file location for model under dir.
func RunPath(dir, model string) string {
	return filepath.Join(dir, config.RunFileName(model))
}

// checkRunPaths rejects models whose run files would overwrite each other.
func checkRunPaths(models []index.Model) error {
	owners := make(map[string]string, len(models))
	for _, m := range models {
		file := strings.ToLower(config.RunFileName(m.Name))
		if other, ok := owners[file]; ok {
			return errors.ValidationError(fmt.Sprintf("models %s and %s share run file %s", other, m.Name, config.RunFileName(m.Name)))
		}
		owners[file] = m.Name
	}
	return nil
}
