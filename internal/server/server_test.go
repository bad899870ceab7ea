package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/metrics"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/report"
)

func testQrels() *qrels.Store {
	store := qrels.NewStore()
	store.Add(qrels.Entry{TopicID: "t1", DocumentID: "d1", Relevance: 3})
	store.Add(qrels.Entry{TopicID: "t1", DocumentID: "d2", Relevance: 2})
	store.Add(qrels.Entry{TopicID: "t2", DocumentID: "d9", Relevance: 1})
	return store
}

func testHistory(t *testing.T) *report.MemoryHistory {
	t.Helper()
	h := report.NewMemoryHistory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, model := range []string{"bm25", "lmd", "bm25"} {
		err := h.Save(context.Background(), &report.ModelReport{
			SessionID: "s1",
			Model:     model,
			Cutoffs:   []int{10},
			MeanNDCG:  map[int]float64{10: 0.5},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return h
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	s := New(cfg, testQrels(), testHistory(t), m, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return ts, m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want %q", cfg.Host, "0.0.0.0")
	}
	if cfg.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Port)
	}
	if len(cfg.Cutoffs) != 2 || cfg.Cutoffs[0] != 10 || cfg.Cutoffs[1] != 100 {
		t.Errorf("Cutoffs = %v, want [10 100]", cfg.Cutoffs)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, Config{Version: "1.2.3"})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Version != "1.2.3" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestRequestID(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want %q", got, "trace-42")
	}
}

func TestEvaluateRun(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	run := "t1 Q0 d2 1 3.0000 mine\nt1 Q0 d1 2 2.0000 mine\nt2 Q0 d9 1 1.0000 mine\n"
	resp, err := http.Post(ts.URL+"/v1/evaluation/runs?ks=10", "text/plain", strings.NewReader(run))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}

	var body struct {
		Tag    string `json:"tag"`
		Result struct {
			Summary struct {
				TopicCount int                `json:"topic_count"`
				MeanNDCG   map[string]float64 `json:"mean_ndcg"`
			} `json:"summary"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if body.Tag != "mine" {
		t.Errorf("tag = %q, want mine", body.Tag)
	}
	if body.Result.Summary.TopicCount != 2 {
		t.Errorf("topic_count = %d, want 2", body.Result.Summary.TopicCount)
	}
	// t1 swaps its two judged documents, t2 is ideal.
	if got := body.Result.Summary.MeanNDCG["10"]; got <= 0.5 || got >= 1 {
		t.Errorf("mean nDCG@10 = %f, want within (0.5, 1)", got)
	}
}

func TestHistory(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantFirst string
	}{
		{name: "all", query: "", wantCount: 3, wantFirst: "bm25"},
		{name: "by model", query: "?model=lmd", wantCount: 1, wantFirst: "lmd"},
		{name: "limited", query: "?model=bm25&limit=1", wantCount: 1, wantFirst: "bm25"},
		{name: "unknown model", query: "?model=dfr", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/evaluation/history" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}

			var body HistoryResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Count != tt.wantCount || len(body.Reports) != tt.wantCount {
				t.Fatalf("count = %d (%d reports), want %d", body.Count, len(body.Reports), tt.wantCount)
			}
			if tt.wantCount > 0 && body.Reports[0].Model != tt.wantFirst {
				t.Errorf("first model = %q, want %q", body.Reports[0].Model, tt.wantFirst)
			}
		})
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/v1/evaluation/history?limit=-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != apperrors.CodeInvalidRequest {
		t.Errorf("code = %s, want %s", body.Code, apperrors.CodeInvalidRequest)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/v1/evaluation/qrels")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	text := string(raw)
	if !strings.Contains(text, "rice_eval_http_requests_total") {
		t.Error("expected http request counter in metrics output")
	}
	if !strings.Contains(text, `path="/v1/evaluation/qrels"`) {
		t.Error("expected qrels path label in metrics output")
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, Config{RateLimit: 0.5})

	post := func() int {
		resp, err := http.Post(ts.URL+"/v1/evaluation/runs", "text/plain", strings.NewReader("t2 Q0 d9 1 1.0 r\n"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := post(); got != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", got)
	}
	if got := post(); got != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", got)
	}

	// Health checks are not limited.
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestStop_NotStarted(t *testing.T) {
	s := New(Config{}, testQrels(), nil, nil, nil)

	if s.Health() {
		t.Error("server should not report healthy before Start")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
