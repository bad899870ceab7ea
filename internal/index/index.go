// Package index defines the full-text index capability shared by every
// backend: documents go in once, the index is frozen, then ranked searches
// run against it under a named scoring model.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/ricesearch/rice-eval/internal/config"
)

// Sentinel errors returned by backends. Callers match with errors.Is.
var (
	// ErrCommitted is returned by Add once the index is frozen.
	ErrCommitted = errors.New("index is committed")

	// ErrNotCommitted is returned by Search before Commit.
	ErrNotCommitted = errors.New("index is not committed")

	// ErrUnknownModel is returned when a request names a model the
	// index was not built with.
	ErrUnknownModel = errors.New("unknown scoring model")

	// ErrQueryParse marks a query the backend could not parse.
	ErrQueryParse = errors.New("query parse error")
)

// Document is the unit of ingestion.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Request is a single ranked search.
type Request struct {
	// Query is already escaped with the index's Escape.
	Query string

	// Model names one of the scoring models the index was built with.
	Model string

	// TopK caps the number of hits.
	TopK int
}

// Hit is one scored document, best first.
type Hit struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// Index is a full-text index over a frozen corpus.
type Index interface {
	// Add ingests a document. It fails with ErrCommitted after Commit.
	Add(ctx context.Context, doc Document) error

	// Commit makes every added document searchable and freezes the index.
	Commit(ctx context.Context) error

	// Search returns at most req.TopK hits ordered by descending score.
	// Ties are broken by the backend's internal document order.
	Search(ctx context.Context, req Request) ([]Hit, error)

	// Escape neutralizes the backend's query syntax so text is matched
	// literally.
	Escape(text string) string

	// Close releases backend resources.
	Close() error
}

// Stats describes a committed index.
type Stats struct {
	Documents int   `json:"documents"`
	Terms     int   `json:"terms"`
	Tokens    int64 `json:"tokens"`
}

// StatsProvider is implemented by backends that can report Stats.
type StatsProvider interface {
	Stats() Stats
}

// ParseError wraps a backend's parser failure so it matches ErrQueryParse.
func ParseError(query string, err error) error {
	return fmt.Errorf("%w: %q: %v", ErrQueryParse, query, err)
}

// Model types.
const (
	BM25        = config.ModelBM25
	LMDirichlet = config.ModelLMDirichlet
)

// Lucene defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
	DefaultMu = 2000.0
)

// Model is a named, fully parameterized scoring function.
type Model struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	K1   float64 `json:"k1,omitempty"`
	B    float64 `json:"b,omitempty"`
	Mu   float64 `json:"mu,omitempty"`
}

// String renders the model with its parameters, e.g. "bm25(k1=1.2,b=0.75)".
func (m Model) String() string {
	switch m.Type {
	case BM25:
		return fmt.Sprintf("%s(k1=%g,b=%g)", m.Name, m.K1, m.B)
	case LMDirichlet:
		return fmt.Sprintf("%s(mu=%g)", m.Name, m.Mu)
	default:
		return m.Name
	}
}

// ModelFromConfig fills zero parameters with the Lucene defaults.
// A configured b of zero is indistinguishable from unset, so BM25 without
// length normalization needs an explicit tiny b.
func ModelFromConfig(mc config.ModelConfig) Model {
	m := Model{Name: mc.Name, Type: mc.Type, K1: mc.K1, B: mc.B, Mu: mc.Mu}
	switch m.Type {
	case BM25:
		if m.K1 == 0 {
			m.K1 = DefaultK1
		}
		if m.B == 0 {
			m.B = DefaultB
		}
		m.Mu = 0
	case LMDirichlet:
		if m.Mu == 0 {
			m.Mu = DefaultMu
		}
		m.K1, m.B = 0, 0
	}
	return m
}

// ModelsFromConfig converts every configured model, preserving order.
func ModelsFromConfig(mcs []config.ModelConfig) []Model {
	models := make([]Model, 0, len(mcs))
	for _, mc := range mcs {
		models = append(models, ModelFromConfig(mc))
	}
	return models
}

// ModelSet indexes models by name.
type ModelSet map[string]Model

// NewModelSet builds a lookup table, rejecting duplicate names.
func NewModelSet(models []Model) (ModelSet, error) {
	if len(models) == 0 {
		return nil, errors.New("at least one scoring model is required")
	}
	set := make(ModelSet, len(models))
	for _, m := range models {
		if _, dup := set[m.Name]; dup {
			return nil, fmt.Errorf("duplicate scoring model %q", m.Name)
		}
		switch m.Type {
		case BM25, LMDirichlet:
		default:
			return nil, fmt.Errorf("model %s: unsupported type %q", m.Name, m.Type)
		}
		set[m.Name] = m
	}
	return set, nil
}

// Lookup returns the named model or ErrUnknownModel.
func (s ModelSet) Lookup(name string) (Model, error) {
	m, ok := s[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}
