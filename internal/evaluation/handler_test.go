package evaluation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(exampleQrels(), []int{10}).RegisterRoutes(mux)
	return mux
}

func TestHandler_EvaluateRun(t *testing.T) {
	body := strings.Join([]string{
		"t1 Q0 d2 1 9.0 bm25",
		"t1 Q0 d1 2 5.0 bm25",
		"t1 Q0 d3 3 0.1 bm25",
	}, "\n")

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluation/runs?ks=3,10&tag=custom", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tag    string `json:"tag"`
		Result struct {
			Cutoffs []int `json:"cutoffs"`
			Summary struct {
				TopicCount int                `json:"topic_count"`
				MeanNDCG   map[string]float64 `json:"mean_ndcg"`
			} `json:"summary"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "custom", resp.Tag)
	assert.Equal(t, []int{3, 10}, resp.Result.Cutoffs)
	assert.Equal(t, 1, resp.Result.Summary.TopicCount)
	assert.InDelta(t, 0.834, resp.Result.Summary.MeanNDCG["10"], 1e-3)
}

func TestHandler_EvaluateRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"bad cutoff", "/v1/evaluation/runs?ks=ten", "t1 Q0 d1 1 1.0 x", http.StatusBadRequest, errors.CodeInvalidRequest},
		{"zero cutoff", "/v1/evaluation/runs?ks=10,0", "t1 Q0 d1 1 1.0 x", http.StatusBadRequest, errors.CodeValidation},
		{"malformed line", "/v1/evaluation/runs", "t1 Q0 d1", http.StatusBadRequest, errors.CodeFormat},
		{"tag with space", "/v1/evaluation/runs?tag=my%20run", "t1 Q0 d1 1 1.0 x", http.StatusBadRequest, errors.CodeInvalidRequest},
		{"duplicate rank", "/v1/evaluation/runs", "t1 Q0 d1 1 1.0 x\nt1 Q0 d2 1 0.5 x", http.StatusUnprocessableEntity, errors.CodeIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newTestMux().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)

			var resp errors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHandler_EvaluateRunBodyTooLarge(t *testing.T) {
	h := NewHandler(exampleQrels(), []int{10})
	h.maxBytes = 64
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body := strings.Repeat("t1 Q0 d1 1 1.0 bm25\n", 10)
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluation/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeTooLarge, resp.Code)
}

func TestHandler_Qrels(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/evaluation/qrels", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp QrelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, QrelsResponse{Topics: 3, Judgments: 5, Cutoffs: []int{10}}, resp)
}
