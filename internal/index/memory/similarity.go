package memory

import (
	"fmt"
	"math"
	"sync"

	"github.com/blugelabs/bluge/search"
	"github.com/blugelabs/bluge/search/searcher"
	"github.com/blugelabs/bluge/search/similarity"
	segment "github.com/blugelabs/bluge_segment_api"

	"github.com/ricesearch/rice-eval/internal/index"
)

// IDF is the Lucene BM25 inverse document frequency.
func IDF(docs, docFreq float64) float64 {
	return math.Log(1 + (docs-docFreq+0.5)/(docFreq+0.5))
}

func similarityFor(m index.Model) search.Similarity {
	if m.Type == index.LMDirichlet {
		return &lmDirichletSimilarity{mu: m.Mu}
	}
	return newBM25Similarity(m.K1, m.B)
}

// fieldLength decodes a norm written by encodeLength.
func fieldLength(norm float64) float64 {
	return float64(math.Float32bits(float32(norm)))
}

// encodeLength stores the exact token count in the norm's bits.
func encodeLength(numTerms int) float32 {
	return math.Float32frombits(uint32(numTerms))
}

// bm25Similarity scores with bluge's BM25 scorer and the Lucene IDF.
type bm25Similarity struct {
	k1, b float64
}

func newBM25Similarity(k1, b float64) *bm25Similarity {
	return &bm25Similarity{k1: k1, b: b}
}

func (s *bm25Similarity) ComputeNorm(numTerms int) float32 {
	return encodeLength(numTerms)
}

func (s *bm25Similarity) Scorer(boost float64, coll segment.CollectionStats, ts segment.TermStats) search.Scorer {
	var docs, avgLen float64 = 0, 1
	if coll != nil && coll.DocumentCount() > 0 {
		docs = float64(coll.DocumentCount())
		avgLen = float64(coll.SumTotalTermFrequency()) / docs
	}
	docFreq := float64(ts.DocumentFrequency())

	idf := search.NewExplanation(IDF(docs, docFreq), "idf, computed as log(1 + (N - n + 0.5) / (n + 0.5)) from:",
		search.NewExplanation(docFreq, "n, number of documents containing term"),
		search.NewExplanation(docs, "N, total number of documents with field"))
	return similarity.NewBM25Scorer(boost, s.k1, s.b, avgLen, idf)
}

// lmDirichletSimilarity is Lucene's LMDirichletSimilarity. It needs the
// collection frequency of the term, which only termStats carries.
type lmDirichletSimilarity struct {
	mu float64
}

func (s *lmDirichletSimilarity) ComputeNorm(numTerms int) float32 {
	return encodeLength(numTerms)
}

func (s *lmDirichletSimilarity) Scorer(boost float64, coll segment.CollectionStats, ts segment.TermStats) search.Scorer {
	var tokens, ctf float64
	if coll != nil {
		tokens = float64(coll.SumTotalTermFrequency())
	}
	if t, ok := ts.(interface{ TotalTermFrequency() uint64 }); ok {
		ctf = float64(t.TotalTermFrequency())
	}
	return &lmDirichletScorer{
		boost: boost,
		mu:    s.mu,
		prob:  (ctf + 1) / (tokens + 1),
	}
}

type lmDirichletScorer struct {
	boost float64
	mu    float64
	prob  float64
}

func (s *lmDirichletScorer) Score(freq int, norm float64) float64 {
	score := math.Log(1+float64(freq)/(s.mu*s.prob)) + math.Log(s.mu/(fieldLength(norm)+s.mu))
	if score < 0 {
		return 0
	}
	return s.boost * score
}

func (s *lmDirichletScorer) Explain(freq int, norm float64) *search.Explanation {
	return search.NewExplanation(s.Score(freq, norm),
		fmt.Sprintf("score(freq=%d), computed as max(0, log(1 + freq / (mu * P(t|C))) + log(mu / (dl + mu))) from:", freq),
		search.NewExplanation(float64(freq), "freq, occurrences of term within document"),
		search.NewExplanation(s.mu, "mu"),
		search.NewExplanation(s.prob, "P(t|C), collection probability of term"),
		search.NewExplanation(fieldLength(norm), "dl, length of field"))
}

// termStats extends bluge's per-term statistics with the collection
// frequency.
type termStats struct {
	docFreq       uint64
	totalTermFreq uint64
}

func (t *termStats) DocumentFrequency() uint64  { return t.docFreq }
func (t *termStats) TotalTermFrequency() uint64 { return t.totalTermFreq }

// termStatsCache memoizes termStats per field and term. The index is
// frozen after Commit so entries never go stale.
type termStatsCache struct {
	entries sync.Map
}

func newTermStatsCache() *termStatsCache {
	return &termStatsCache{}
}

func (c *termStatsCache) get(r search.Reader, field, term string) (*termStats, error) {
	key := field + "\x00" + term
	if v, ok := c.entries.Load(key); ok {
		return v.(*termStats), nil
	}

	it, err := r.PostingsIterator([]byte(term), field, true, false, false)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	ts := &termStats{docFreq: it.Count()}
	for {
		p, err := it.Next()
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		ts.totalTermFreq += uint64(p.Frequency())
	}

	v, _ := c.entries.LoadOrStore(key, ts)
	return v.(*termStats), nil
}

// termQuery matches one analyzed term and scores it with a fixed
// similarity, bypassing the reader's per-field configuration.
type termQuery struct {
	term       string
	field      string
	similarity search.Similarity
	cache      *termStatsCache
}

func (q *termQuery) Searcher(r search.Reader, options search.SearcherOptions) (search.Searcher, error) {
	coll, err := r.CollectionStats(q.field)
	if err != nil {
		return nil, err
	}
	ts, err := q.cache.get(r, q.field, q.term)
	if err != nil {
		return nil, err
	}
	if ts.docFreq == 0 {
		return searcher.NewMatchNoneSearcher(r, options)
	}
	scorer := q.similarity.Scorer(1, coll, ts)
	return searcher.NewTermSearcher(r, q.term, q.field, 1, scorer, options)
}

// collectionStatsQuery matches nothing and records the token count of its
// field as the reader sees it.
type collectionStatsQuery struct {
	field  string
	tokens uint64
}

func (q *collectionStatsQuery) Searcher(r search.Reader, options search.SearcherOptions) (search.Searcher, error) {
	coll, err := r.CollectionStats(q.field)
	if err != nil {
		return nil, err
	}
	if coll != nil {
		q.tokens = coll.SumTotalTermFrequency()
	}
	return searcher.NewMatchNoneSearcher(r, options)
}
