// Package retrieval turns queries into ranked run lists by searching a
// committed index under one scoring model at a time.
package retrieval

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/runfile"
)

// DefaultTopK is the run depth.
const DefaultTopK = 100

// Searcher is the part of index.Index the runner needs.
type Searcher interface {
	Search(ctx context.Context, req index.Request) ([]index.Hit, error)
	Escape(text string) string
}

// Recorder observes each search. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveSearch(model string, elapsed time.Duration, err error)
}

// Config controls run depth and parallelism.
type Config struct {
	// TopK caps each ranked list.
	TopK int

	// Workers bounds concurrent searches. 1 runs queries sequentially.
	Workers int

	// RateLimit caps searches per second. 0 disables throttling.
	RateLimit float64
}

// Runner produces run lists.
type Runner struct {
	idx      Searcher
	cfg      Config
	limiter  *rate.Limiter
	recorder Recorder
	log      *logger.Logger
}

// NewRunner creates a runner over idx. A nil recorder is allowed.
func NewRunner(idx Searcher, cfg Config, recorder Recorder, log *logger.Logger) *Runner {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	r := &Runner{
		idx:      idx,
		cfg:      cfg,
		recorder: recorder,
		log:      log.WithComponent("retrieval"),
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.Workers))
	}
	return r
}

// Run searches every query under model. Results follow the input query
// order whatever order the searches complete in. A query that fails to
// parse aborts the run and the error names the query.
func (r *Runner) Run(ctx context.Context, queries []corpus.Query, model string) ([]runfile.TopicResult, error) {
	results := make([]runfile.TopicResult, len(queries))
	log := r.log.WithModel(model)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, q := range queries {
		g.Go(func() error {
			hits, err := r.search(gctx, q, model)
			if err != nil {
				return err
			}
			results[i] = runfile.TopicResult{TopicID: q.ID, Hits: hits}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("Run complete",
		"queries", len(queries),
		"top_k", r.cfg.TopK,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// search runs one query and assigns 1-based ranks in index order.
func (r *Runner) search(ctx context.Context, q corpus.Query, model string) ([]runfile.Hit, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := index.Request{
		Query: r.idx.Escape(strings.ToLower(q.Text)),
		Model: model,
		TopK:  r.cfg.TopK,
	}

	started := time.Now()
	found, err := r.idx.Search(ctx, req)
	if r.recorder != nil {
		r.recorder.ObserveSearch(model, time.Since(started), err)
	}
	if err != nil {
		switch {
		case stderrors.Is(err, index.ErrQueryParse):
			return nil, errors.QueryParseError(q.ID, err)
		case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) {
				return nil, err
			}
			return nil, errors.IndexError("searching query "+q.ID, err)
		}
	}

	if len(found) > r.cfg.TopK {
		found = found[:r.cfg.TopK]
	}

	hits := make([]runfile.Hit, len(found))
	for i, h := range found {
		hits[i] = runfile.Hit{DocumentID: h.DocumentID, Rank: i + 1, Score: h.Score}
	}
	return hits, nil
}
