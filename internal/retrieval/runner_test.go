package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/index/memory"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// fakeSearcher returns n hits per query, scored descending, after a
// random delay so parallel searches complete out of order.
type fakeSearcher struct {
	mu       sync.Mutex
	requests []index.Request
	hits     int
	jitter   bool
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, req index.Request) ([]index.Hit, error) {
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	hits := make([]index.Hit, f.hits)
	for i := range hits {
		hits[i] = index.Hit{DocumentID: fmt.Sprintf("%s-d%d", req.Query, i), Score: float64(f.hits - i)}
	}
	return hits, nil
}

func (f *fakeSearcher) Escape(text string) string { return "<" + text + ">" }

type countingRecorder struct {
	mu     sync.Mutex
	calls  int
	errors int
}

func (c *countingRecorder) ObserveSearch(_ string, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err != nil {
		c.errors++
	}
}

func TestRun_RanksAndOrder(t *testing.T) {
	searcher := &fakeSearcher{hits: 3, jitter: true}
	rec := &countingRecorder{}
	r := NewRunner(searcher, Config{TopK: 10, Workers: 8}, rec, nil)

	queries := make([]corpus.Query, 20)
	for i := range queries {
		queries[i] = corpus.Query{ID: fmt.Sprintf("q%d", i), Text: fmt.Sprintf("Query %d", i)}
	}

	results, err := r.Run(context.Background(), queries, "bm25")
	require.NoError(t, err)
	require.Len(t, results, len(queries))

	for i, res := range results {
		assert.Equal(t, queries[i].ID, res.TopicID)
		require.Len(t, res.Hits, 3)
		for j, h := range res.Hits {
			assert.Equal(t, j+1, h.Rank)
		}
		assert.Equal(t, fmt.Sprintf("<query %d>-d0", i), res.Hits[0].DocumentID)
	}
	assert.Equal(t, 20, rec.calls)
}

func TestRun_LowercasesEscapesAndCaps(t *testing.T) {
	searcher := &fakeSearcher{hits: 50}
	r := NewRunner(searcher, Config{TopK: 5}, nil, nil)

	results, err := r.Run(context.Background(), []corpus.Query{{ID: "q1", Text: "Big CATS"}}, "lmd")
	require.NoError(t, err)

	require.Len(t, searcher.requests, 1)
	assert.Equal(t, index.Request{Query: "<big cats>", Model: "lmd", TopK: 5}, searcher.requests[0])
	assert.Len(t, results[0].Hits, 5)
	assert.Equal(t, 5, results[0].Hits[4].Rank)
}

func TestRun_NoPadding(t *testing.T) {
	r := NewRunner(&fakeSearcher{hits: 0}, Config{TopK: 100}, nil, nil)

	results, err := r.Run(context.Background(), []corpus.Query{{ID: "q1", Text: "nothing"}}, "bm25")
	require.NoError(t, err)
	assert.Empty(t, results[0].Hits)
	assert.Equal(t, "q1", results[0].TopicID)
}

func TestRun_ParseErrorNamesQuery(t *testing.T) {
	searcher := &fakeSearcher{err: index.ParseError("x", errors.New("bad"))}
	rec := &countingRecorder{}
	r := NewRunner(searcher, Config{}, rec, nil)

	_, err := r.Run(context.Background(), []corpus.Query{{ID: "q42", Text: "x"}}, "bm25")
	require.Error(t, err)
	assert.True(t, apperrors.IsQueryParse(err))
	assert.Contains(t, err.Error(), "q42")
	assert.ErrorIs(t, err, index.ErrQueryParse)
	assert.Equal(t, 1, rec.errors)
}

func TestRun_BackendFailure(t *testing.T) {
	r := NewRunner(&fakeSearcher{err: errors.New("connection refused")}, Config{}, nil, nil)

	_, err := r.Run(context.Background(), []corpus.Query{{ID: "q1", Text: "x"}}, "bm25")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIndex))
}

func TestRun_Canceled(t *testing.T) {
	r := NewRunner(&fakeSearcher{hits: 1}, Config{RateLimit: 0.001}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, []corpus.Query{{ID: "q1", Text: "a"}, {ID: "q2", Text: "b"}}, "bm25")
	assert.Error(t, err)
}

func TestRun_MemoryIndex(t *testing.T) {
	ctx := context.Background()
	x, err := memory.New([]index.Model{{Name: "bm25", Type: index.BM25, K1: 1.2, B: 0.75}}, nil)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, index.Document{ID: "d1", Text: "cats purr"}))
	require.NoError(t, x.Add(ctx, index.Document{ID: "d2", Text: "dogs bark at cats"}))
	require.NoError(t, x.Commit(ctx))

	r := NewRunner(x, Config{TopK: 10, Workers: 2}, nil, nil)
	results, err := r.Run(ctx, []corpus.Query{
		{ID: "q1", Text: "What do DOGS do?"},
		{ID: "q2", Text: "cats (purring)"},
	}, "bm25")
	require.NoError(t, err)

	require.Len(t, results[0].Hits, 1)
	assert.Equal(t, "d2", results[0].Hits[0].DocumentID)
	require.Len(t, results[1].Hits, 2)
	assert.Equal(t, "d1", results[1].Hits[0].DocumentID)
}
