// Package memory is an in-process bluge index that scores with the Lucene
// BM25 and Dirichlet language-model similarities.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/blugelabs/bluge"
	blugeindex "github.com/blugelabs/bluge/index"
	"github.com/blugelabs/bluge/search"

	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/index/analysis"
	"github.com/ricesearch/rice-eval/internal/index/querytext"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

const (
	idField   = "_id"
	textField = "text"
	ordField  = "ord"
)

// Index buffers documents until Commit, which writes them to an in-memory
// bluge segment and opens the reader every search uses. Documents are
// numbered in insertion order and that number breaks score ties.
type Index struct {
	mu        sync.RWMutex
	analyzer  *analysis.Analyzer
	models    index.ModelSet
	sims      map[string]search.Similarity
	log       *logger.Logger
	committed bool

	batch  *blugeindex.Batch
	count  int
	writer *bluge.Writer
	reader *bluge.Reader
	terms  *termStatsCache
	stats  index.Stats
}

var _ index.Index = (*Index)(nil)

// New returns an empty index serving the given models.
func New(models []index.Model, log *logger.Logger) (*Index, error) {
	set, err := index.NewModelSet(models)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	sims := make(map[string]search.Similarity, len(set))
	for name, m := range set {
		sims[name] = similarityFor(m)
	}

	return &Index{
		analyzer: analysis.English(),
		models:   set,
		sims:     sims,
		log:      log.WithComponent("index.memory"),
		batch:    bluge.NewBatch(),
		terms:    newTermStatsCache(),
	}, nil
}

// Add queues doc for indexing. Repeated IDs are indexed as separate
// documents.
func (x *Index) Add(ctx context.Context, doc index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.committed {
		return index.ErrCommitted
	}

	d := bluge.NewDocument(doc.ID).
		AddField(bluge.NewTextField(textField, doc.Text).WithAnalyzer(x.analyzer)).
		AddField(bluge.NewKeywordField(ordField, ordinal(x.count)).Sortable())
	x.batch.Insert(d)
	x.count++
	return nil
}

// Commit writes every queued document as one batch and freezes the index.
func (x *Index) Commit(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.committed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := bluge.InMemoryOnlyConfig()
	cfg.DefaultSimilarity = newBM25Similarity(index.DefaultK1, index.DefaultB)

	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return fmt.Errorf("opening index writer: %w", err)
	}
	if err := writer.Batch(x.batch); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing %d documents: %w", x.count, err)
	}
	reader, err := writer.Reader()
	if err != nil {
		_ = writer.Close()
		return err
	}

	x.writer, x.reader = writer, reader
	x.batch = nil
	x.committed = true

	stats, err := collectStats(ctx, reader, x.count)
	if err != nil {
		return err
	}
	x.stats = stats

	x.log.Info("Index committed",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"tokens", stats.Tokens,
	)
	return nil
}

// Search parses the escaped query, analyzes it and ranks every matching
// document. Each query term contributes once per occurrence.
func (x *Index) Search(ctx context.Context, req index.Request) ([]index.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := x.models.Lookup(req.Model)
	if err != nil {
		return nil, err
	}

	text, err := querytext.Unescape(req.Query)
	if err != nil {
		return nil, index.ParseError(req.Query, err)
	}
	terms := x.analyzer.Terms(text)

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.committed {
		return nil, index.ErrNotCommitted
	}
	if len(terms) == 0 || x.count == 0 || req.TopK < 1 {
		return nil, nil
	}

	sim := x.sims[model.Name]
	query := bluge.NewBooleanQuery()
	for _, term := range terms {
		query.AddShould(&termQuery{term: term, field: textField, similarity: sim, cache: x.terms})
	}

	request := bluge.NewTopNSearch(req.TopK, query).SortBy([]string{"-_score", ordField})
	it, err := x.reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("searching with model %s: %w", model.Name, err)
	}

	var hits []index.Hit
	for {
		match, err := it.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var id string
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				id = string(value)
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, index.Hit{DocumentID: id, Score: match.Score})
	}
	return hits, nil
}

// Escape neutralizes classic query syntax.
func (x *Index) Escape(text string) string {
	return querytext.Escape(text)
}

// Stats reports collection sizes. Terms and Tokens are known only after
// Commit.
func (x *Index) Stats() index.Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.committed {
		return index.Stats{Documents: x.count}
	}
	return x.stats
}

// Close releases the reader and writer.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var firstErr error
	if x.reader != nil {
		firstErr = x.reader.Close()
		x.reader = nil
	}
	if x.writer != nil {
		if err := x.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		x.writer = nil
	}
	return firstErr
}

// String describes the index for logs.
func (x *Index) String() string {
	st := x.Stats()
	return fmt.Sprintf("memory index: %d documents, %d terms", st.Documents, st.Terms)
}

// ordinal renders n so that lexical order matches numeric order.
func ordinal(n int) string {
	return fmt.Sprintf("%012d", n)
}

// collectStats counts distinct terms and tokens in the text field.
func collectStats(ctx context.Context, reader *bluge.Reader, docs int) (index.Stats, error) {
	stats := index.Stats{Documents: docs}
	if docs == 0 {
		return stats, nil
	}

	dict, err := reader.DictionaryIterator(textField, nil, nil, nil)
	if err != nil {
		return stats, err
	}
	defer dict.Close()
	for {
		entry, err := dict.Next()
		if err != nil {
			return stats, err
		}
		if entry == nil {
			break
		}
		stats.Terms++
	}

	capture := &collectionStatsQuery{field: textField}
	it, err := reader.Search(ctx, bluge.NewTopNSearch(1, capture))
	if err != nil {
		return stats, err
	}
	if _, err := it.Next(); err != nil {
		return stats, err
	}
	stats.Tokens = int64(capture.tokens)
	return stats, nil
}
