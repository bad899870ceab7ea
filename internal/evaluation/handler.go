package evaluation

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/runfile"
)

// maxRunBytes bounds the size of a posted run file.
const maxRunBytes = 64 << 20

// Handler exposes run scoring over HTTP.
type Handler struct {
	qrels    *qrels.Store
	defaults []int
	maxBytes int64
}

// NewHandler creates a handler scoring runs against store. Requests that
// name no cutoffs use defaults.
func NewHandler(store *qrels.Store, defaults []int) *Handler {
	if store == nil {
		store = qrels.NewStore()
	}
	return &Handler{qrels: store, defaults: defaults, maxBytes: maxRunBytes}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/runs", h.handleEvaluateRun)
	mux.HandleFunc("GET /v1/evaluation/qrels", h.handleQrels)
}

// EvaluateResponse is the body returned for a scored run.
type EvaluateResponse struct {
	Tag    string  `json:"tag"`
	Result *Result `json:"result"`
}

// QrelsResponse describes the loaded judgments.
type QrelsResponse struct {
	Topics    int   `json:"topics"`
	Judgments int   `json:"judgments"`
	Cutoffs   []int `json:"cutoffs"`
}

// handleEvaluateRun scores a TREC run posted as the request body.
// Cutoffs may be given as ks=10,100; tag overrides the run's own tag.
func (h *Handler) handleEvaluateRun(w http.ResponseWriter, r *http.Request) {
	cutoffs, err := parseCutoffs(r.URL.Query().Get("ks"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if cutoffs == nil {
		cutoffs = h.defaults
	}

	evaluator, err := NewEvaluator(h.qrels, cutoffs)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	// The body is read whole first so a truncated last line is never
	// parsed as a malformed record.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteError(w, errors.TooLargeError(tooLarge.Limit))
			return
		}
		errors.WriteError(w, errors.IOError("request", err))
		return
	}

	run, err := runfile.Read(bytes.NewReader(body), "request")
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	if tag := r.URL.Query().Get("tag"); tag != "" {
		if err := security.ValidateTag(tag); err != nil {
			errors.WriteError(w, errors.InvalidRequestError(err.Error()))
			return
		}
		run.Tag = tag
	}

	result, err := evaluator.Evaluate(run)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{Tag: run.Tag, Result: result})
}

func parseCutoffs(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var cutoffs []int
	for _, part := range strings.Split(raw, ",") {
		k, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.InvalidRequestError("invalid cutoff " + strconv.Quote(part))
		}
		cutoffs = append(cutoffs, k)
	}
	return cutoffs, nil
}

func (h *Handler) handleQrels(w http.ResponseWriter, _ *http.Request) {
	cutoffs := h.defaults
	if len(cutoffs) == 0 {
		cutoffs = DefaultCutoffs
	}
	writeJSON(w, http.StatusOK, QrelsResponse{
		Topics:    len(h.qrels.Topics()),
		Judgments: h.qrels.Len(),
		Cutoffs:   cutoffs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
