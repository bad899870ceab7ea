package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("duplicate rank"))
	})
	wrapped := HTTPMiddleware(m, handler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evaluation/runs", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rec.Code)
	}
	if v := m.HTTPRequests.WithLabels("POST", "/v1/evaluation/runs", "422").Value(); v != 1 {
		t.Errorf("expected 1 request recorded, got %d", v)
	}
	if m.HTTPRequestsInFlight.Value() != 0 {
		t.Errorf("expected in-flight requests to be 0, got %f", m.HTTPRequestsInFlight.Value())
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/v1/evaluation/runs", "/v1/evaluation/runs"},
		{"/v1/evaluation/history", "/v1/evaluation/history"},
		{"/wp-login.php", "other"},
		{"/v1/evaluation/runs/extra", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizePath(tt.input); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{
		200: "200",
		422: "422",
		302: "3xx",
		418: "4xx",
		599: "5xx",
		999: "999",
	}
	for code, want := range tests {
		if got := statusCode(code); got != want {
			t.Errorf("statusCode(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.DocumentsIndexed.Add(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "rice_eval_documents_indexed_total 7") {
		t.Error("body missing documents counter")
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
