// Package sparse implements the index capability as BM25 sparse vectors
// in Qdrant. Each document stores the BM25 term-frequency component per
// hashed term; Qdrant's IDF modifier supplies the inverse document
// frequency at query time, so the dot product with a query of term counts
// is the BM25 score.
package sparse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/index/analysis"
	"github.com/ricesearch/rice-eval/internal/index/querytext"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/hash"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/qdrant"
)

// Store is the subset of the Qdrant client the backend uses.
type Store interface {
	RecreateCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	UpsertPointsBatch(ctx context.Context, collection string, points []qdrant.Point, batchSize int) error
	SparseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	Close() error
}

// Config holds collection settings.
type Config struct {
	Collection string
	BatchSize  int
}

type pending struct {
	id     string
	freqs  map[string]int
	length int
}

// Index buffers analyzed documents until Commit, when the average document
// length is known and the vectors can be weighted.
type Index struct {
	store    Store
	cfg      Config
	models   index.ModelSet
	names    []string
	analyzer *analysis.Analyzer
	log      *logger.Logger

	mu        sync.RWMutex
	committed bool
	docs      []pending
	tokens    int64
	count     int
}

var _ index.Index = (*Index)(nil)

// ValidateModels rejects models that have no sparse-vector form.
func ValidateModels(models []index.Model) error {
	for _, m := range models {
		if m.Type != index.BM25 {
			return apperrors.ValidationError(
				fmt.Sprintf("model %s: the qdrant backend supports bm25 models only", m.Name))
		}
	}
	return nil
}

// New validates that every model is BM25 and returns an empty index.
func New(store Store, cfg Config, models []index.Model, log *logger.Logger) (*Index, error) {
	set, err := index.NewModelSet(models)
	if err != nil {
		return nil, err
	}
	if err := ValidateModels(models); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	if cfg.Collection == "" {
		return nil, apperrors.ValidationError("qdrant collection name is required")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 256
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Index{
		store:    store,
		cfg:      cfg,
		models:   set,
		names:    names,
		analyzer: analysis.English(),
		log:      log.WithComponent("index.qdrant"),
	}, nil
}

// Add analyzes doc and buffers it.
func (x *Index) Add(ctx context.Context, doc index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	freqs, length := x.analyzer.Frequencies(doc.Text)

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.committed {
		return index.ErrCommitted
	}
	x.docs = append(x.docs, pending{id: doc.ID, freqs: freqs, length: length})
	x.tokens += int64(length)
	return nil
}

// Commit creates the collection and uploads every buffered document.
func (x *Index) Commit(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.committed {
		return nil
	}

	if err := x.store.RecreateCollection(ctx, qdrant.DefaultCollectionConfig(x.cfg.Collection, x.names)); err != nil {
		return apperrors.IndexError("creating collection "+x.cfg.Collection, err)
	}

	avgLen := 1.0
	if len(x.docs) > 0 && x.tokens > 0 {
		avgLen = float64(x.tokens) / float64(len(x.docs))
	}

	for start := 0; start < len(x.docs); start += x.cfg.BatchSize {
		end := min(start+x.cfg.BatchSize, len(x.docs))

		points := make([]qdrant.Point, 0, end-start)
		for _, d := range x.docs[start:end] {
			vectors := make(map[string]qdrant.SparseVector, len(x.names))
			for _, name := range x.names {
				m := x.models[name]
				vectors[name] = DocumentVector(d.freqs, d.length, avgLen, m.K1, m.B)
			}
			points = append(points, qdrant.Point{
				ID:         hash.PointID(d.id),
				DocumentID: d.id,
				Vectors:    vectors,
			})
		}

		if err := x.store.UpsertPointsBatch(ctx, x.cfg.Collection, points, len(points)); err != nil {
			return apperrors.IndexError(fmt.Sprintf("uploading documents %d-%d", start, end), err)
		}
	}

	x.count = len(x.docs)
	x.docs = nil
	x.committed = true

	x.log.Info("Index committed",
		"collection", x.cfg.Collection,
		"documents", x.count,
		"avg_length", avgLen,
	)
	return nil
}

// Search parses the escaped query and runs a sparse query against the
// model's vector.
func (x *Index) Search(ctx context.Context, req index.Request) ([]index.Hit, error) {
	model, err := x.models.Lookup(req.Model)
	if err != nil {
		return nil, err
	}

	text, err := querytext.Unescape(req.Query)
	if err != nil {
		return nil, index.ParseError(req.Query, err)
	}

	x.mu.RLock()
	committed := x.committed
	x.mu.RUnlock()
	if !committed {
		return nil, index.ErrNotCommitted
	}

	qv := QueryVector(x.analyzer.Terms(text))
	if qv.Len() == 0 || req.TopK < 1 {
		return nil, nil
	}

	results, err := x.store.SparseSearch(ctx, x.cfg.Collection, qdrant.SearchRequest{
		Using:  model.Name,
		Vector: qv,
		Limit:  uint64(req.TopK),
	})
	if err != nil {
		return nil, apperrors.IndexError("searching "+x.cfg.Collection, err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, index.Hit{DocumentID: r.DocumentID, Score: float64(r.Score)})
	}
	return hits, nil
}

// Escape neutralizes classic query syntax.
func (x *Index) Escape(text string) string {
	return querytext.Escape(text)
}

// Stats reports the number of documents.
func (x *Index) Stats() index.Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.committed {
		return index.Stats{Documents: x.count, Tokens: x.tokens}
	}
	return index.Stats{Documents: len(x.docs), Tokens: x.tokens}
}

// Close closes the Qdrant connection.
func (x *Index) Close() error {
	return x.store.Close()
}

// DocumentVector weights each term by Lucene's BM25 term-frequency
// component tf/(tf + k1(1 - b + b*len/avgLen)). Terms whose hashes collide
// share a dimension and their weights add.
func DocumentVector(freqs map[string]int, length int, avgLen, k1, b float64) qdrant.SparseVector {
	norm := k1 * (1 - b + b*float64(length)/avgLen)
	weights := make(map[uint32]float64, len(freqs))
	for term, f := range freqs {
		tf := float64(f)
		weights[hash.TermIndex(term)] += tf / (tf + norm)
	}
	return toVector(weights)
}

// QueryVector counts each term, so a repeated query term weighs double.
func QueryVector(terms []string) qdrant.SparseVector {
	weights := make(map[uint32]float64, len(terms))
	for _, t := range terms {
		weights[hash.TermIndex(t)]++
	}
	return toVector(weights)
}

func toVector(weights map[uint32]float64) qdrant.SparseVector {
	v := qdrant.SparseVector{
		Indices: make([]uint32, 0, len(weights)),
		Values:  make([]float32, 0, len(weights)),
	}
	for idx := range weights {
		v.Indices = append(v.Indices, idx)
	}
	sort.Slice(v.Indices, func(i, j int) bool { return v.Indices[i] < v.Indices[j] })
	for _, idx := range v.Indices {
		v.Values = append(v.Values, float32(weights[idx]))
	}
	return v
}
