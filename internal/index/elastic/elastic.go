// Package elastic implements the index capability on Elasticsearch. Every
// scoring model gets its own similarity and a matching sub-field of the
// text field, so one ingestion serves all models.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/index/querytext"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// textField holds the raw document text; model sub-fields hang off it.
const textField = "text"

// Config holds Elasticsearch connection and ingestion settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// Index is recreated on New.
	Index string

	// Workers is the number of bulk indexing workers.
	Workers int

	// FlushBytes is the bulk request size threshold.
	FlushBytes int

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Index is an Elasticsearch-backed index.
type Index struct {
	client *elasticsearch.Client
	name   string
	models index.ModelSet
	log    *logger.Logger

	mu        sync.Mutex
	bulk      esutil.BulkIndexer
	committed bool
	added     int
	failure   error
}

var _ index.Index = (*Index)(nil)

// New connects, recreates the target index with one similarity per model
// and starts a bulk indexer.
func New(ctx context.Context, cfg Config, models []index.Model, log *logger.Logger) (*Index, error) {
	set, err := index.NewModelSet(models)
	if err != nil {
		return nil, err
	}
	if err := checkFieldNames(models); err != nil {
		return nil, err
	}
	if cfg.Index == "" {
		return nil, apperrors.ValidationError("elasticsearch index name is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FlushBytes < 1 {
		cfg.FlushBytes = 5 << 20
	}
	if log == nil {
		log = logger.Discard()
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, apperrors.IndexError("creating elasticsearch client", err)
	}

	x := &Index{
		client: client,
		name:   cfg.Index,
		models: set,
		log:    log.WithComponent("index.elasticsearch"),
	}

	if err := x.recreate(ctx, models); err != nil {
		return nil, err
	}

	bulk, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     client,
		Index:      cfg.Index,
		NumWorkers: cfg.Workers,
		FlushBytes: cfg.FlushBytes,
		OnError: func(_ context.Context, err error) {
			x.recordFailure(err)
		},
	})
	if err != nil {
		return nil, apperrors.IndexError("creating bulk indexer", err)
	}
	x.bulk = bulk

	return x, nil
}

// recreate drops any previous index of the same name and creates it fresh.
func (x *Index) recreate(ctx context.Context, models []index.Model) error {
	del := esapi.IndicesDeleteRequest{
		Index:             []string{x.name},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}
	res, err := del.Do(ctx, x.client)
	if err != nil {
		return apperrors.IndexError("deleting index "+x.name, err)
	}
	res.Body.Close()

	body, err := json.Marshal(indexSettings(models))
	if err != nil {
		return apperrors.InternalError("encoding index settings", err)
	}

	create := esapi.IndicesCreateRequest{
		Index: x.name,
		Body:  bytes.NewReader(body),
	}
	res, err = create.Do(ctx, x.client)
	if err != nil {
		return apperrors.IndexError("creating index "+x.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.IndexError("creating index "+x.name, fmt.Errorf("%s", res.String()))
	}

	x.log.Info("Index created", "index", x.name, "models", len(models))
	return nil
}

// indexSettings declares a single shard so collection statistics are
// global, one similarity per model and one english-analyzed sub-field per
// model bound to that similarity.
func indexSettings(models []index.Model) map[string]any {
	similarities := make(map[string]any, len(models))
	fields := make(map[string]any, len(models))

	for _, m := range models {
		sim := similarityName(m)
		switch m.Type {
		case index.BM25:
			similarities[sim] = map[string]any{"type": "BM25", "k1": m.K1, "b": m.B}
		case index.LMDirichlet:
			similarities[sim] = map[string]any{"type": "LMDirichlet", "mu": m.Mu}
		}
		fields[fieldName(m)] = map[string]any{
			"type":       "text",
			"analyzer":   "english",
			"similarity": sim,
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"index": map[string]any{
				"similarity": similarities,
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				textField: map[string]any{
					"type":     "text",
					"analyzer": "english",
					"fields":   fields,
				},
			},
		},
	}
}

var unsafeFieldChars = regexp.MustCompile(`[^a-z0-9_\-]`)

// fieldName maps a model to a sub-field name Elasticsearch accepts.
func fieldName(m index.Model) string {
	return unsafeFieldChars.ReplaceAllString(strings.ToLower(m.Name), "_")
}

// checkFieldNames rejects models that would share a sub-field and so
// silently search with another model's similarity.
func checkFieldNames(models []index.Model) error {
	owners := make(map[string]string, len(models))
	for _, m := range models {
		name := fieldName(m)
		if other, ok := owners[name]; ok {
			return apperrors.ValidationError(fmt.Sprintf("models %s and %s share elasticsearch field %s", other, m.Name, name))
		}
		owners[name] = m.Name
	}
	return nil
}

func similarityName(m index.Model) string {
	return "sim_" + fieldName(m)
}

func (x *Index) recordFailure(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.failure == nil {
		x.failure = err
	}
}

// Add queues doc on the bulk indexer.
func (x *Index) Add(ctx context.Context, doc index.Document) error {
	x.mu.Lock()
	if x.committed {
		x.mu.Unlock()
		return index.ErrCommitted
	}
	x.added++
	x.mu.Unlock()

	body, err := json.Marshal(map[string]string{textField: doc.Text})
	if err != nil {
		return apperrors.InternalError("encoding document "+doc.ID, err)
	}

	err = x.bulk.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			if err == nil {
				err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
			}
			x.recordFailure(fmt.Errorf("document %s: %w", item.DocumentID, err))
		},
	})
	if err != nil {
		return apperrors.IndexError("queueing document "+doc.ID, err)
	}
	return nil
}

// Commit flushes the bulk indexer and refreshes the index.
func (x *Index) Commit(ctx context.Context) error {
	x.mu.Lock()
	if x.committed {
		x.mu.Unlock()
		return nil
	}
	x.committed = true
	x.mu.Unlock()

	if err := x.bulk.Close(ctx); err != nil {
		return apperrors.IndexError("flushing bulk indexer", err)
	}

	stats := x.bulk.Stats()
	x.mu.Lock()
	failure := x.failure
	x.mu.Unlock()
	if stats.NumFailed > 0 || failure != nil {
		return apperrors.IndexError(fmt.Sprintf("%d documents failed to index", stats.NumFailed), failure)
	}

	refresh := esapi.IndicesRefreshRequest{Index: []string{x.name}}
	res, err := refresh.Do(ctx, x.client)
	if err != nil {
		return apperrors.IndexError("refreshing index "+x.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.IndexError("refreshing index "+x.name, fmt.Errorf("%s", res.String()))
	}

	x.log.Info("Index committed",
		"index", x.name,
		"documents", stats.NumIndexed,
		"requests", stats.NumRequests,
	)
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		RootCause []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"root_cause"`
	} `json:"error"`
	Status int `json:"status"`
}

// Search runs a query_string query against the model's sub-field.
func (x *Index) Search(ctx context.Context, req index.Request) ([]index.Hit, error) {
	model, err := x.models.Lookup(req.Model)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	committed := x.committed
	x.mu.Unlock()
	if !committed {
		return nil, index.ErrNotCommitted
	}
	if strings.TrimSpace(req.Query) == "" || req.TopK < 1 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"size":             req.TopK,
		"_source":          false,
		"track_total_hits": false,
		"query": map[string]any{
			"query_string": map[string]any{
				"query":         req.Query,
				"default_field": textField + "." + fieldName(model),
			},
		},
	})
	if err != nil {
		return nil, apperrors.InternalError("encoding search request", err)
	}

	search := esapi.SearchRequest{
		Index: []string{x.name},
		Body:  bytes.NewReader(body),
	}
	res, err := search.Do(ctx, x.client)
	if err != nil {
		return nil, apperrors.IndexError("searching "+x.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, x.searchError(req.Query, res.StatusCode, res.Body)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.IndexError("decoding search response", err)
	}

	hits := make([]index.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, index.Hit{DocumentID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// searchError maps a 400 caused by query parsing to index.ErrQueryParse.
func (x *Index) searchError(query string, status int, body io.Reader) error {
	raw, _ := io.ReadAll(body)

	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)

	if status == http.StatusBadRequest && isParseFailure(parsed) {
		reason := parsed.Error.Reason
		if len(parsed.Error.RootCause) > 0 {
			reason = parsed.Error.RootCause[0].Reason
		}
		return index.ParseError(query, fmt.Errorf("%s", reason))
	}
	return apperrors.IndexError(fmt.Sprintf("search failed with status %d", status), fmt.Errorf("%s", raw))
}

func isParseFailure(e errorResponse) bool {
	types := []string{e.Error.Type}
	for _, rc := range e.Error.RootCause {
		types = append(types, rc.Type)
	}
	for _, t := range types {
		if t == "query_shard_exception" || t == "parse_exception" || t == "query_parsing_exception" {
			return true
		}
	}
	return false
}

// Escape neutralizes query_string syntax.
func (x *Index) Escape(text string) string {
	return querytext.EscapeElastic(text)
}

// Stats reports the number of documents queued for indexing.
func (x *Index) Stats() index.Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return index.Stats{Documents: x.added}
}

// Close flushes a bulk indexer that was never committed.
func (x *Index) Close() error {
	x.mu.Lock()
	committed := x.committed
	x.committed = true
	x.mu.Unlock()

	if !committed && x.bulk != nil {
		return x.bulk.Close(context.Background())
	}
	return nil
}
