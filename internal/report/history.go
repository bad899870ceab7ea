package report

import (
	"context"
	"sort"
	"sync"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Filter narrows a history listing.
type Filter struct {
	// Model restricts results to one model name. Empty means all.
	Model string

	// Limit caps the number of reports. 0 means no cap.
	Limit int
}

// History persists model reports. List returns newest first.
type History interface {
	Save(ctx context.Context, r *ModelReport) error
	List(ctx context.Context, f Filter) ([]*ModelReport, error)
	Close() error
}

// NewHistory creates the history store named by cfg.History.
func NewHistory(cfg config.ReportConfig) (History, error) {
	switch cfg.History {
	case "memory", "":
		return NewMemoryHistory(), nil
	case "redis":
		return NewRedisHistory(cfg.RedisURL)
	case "none":
		return NopHistory{}, nil
	default:
		return nil, errors.ValidationError("unknown history store: " + cfg.History)
	}
}

// MemoryHistory keeps reports for the life of the process.
type MemoryHistory struct {
	mu      sync.RWMutex
	reports []*ModelReport
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Save stores a summary of r.
func (h *MemoryHistory) Save(_ context.Context, r *ModelReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r.Summary())
	return nil
}

// List returns matching reports, newest first.
func (h *MemoryHistory) List(_ context.Context, f Filter) ([]*ModelReport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*ModelReport, 0, len(h.reports))
	for i := len(h.reports) - 1; i >= 0; i-- {
		r := h.reports[i]
		if f.Model != "" && r.Model != f.Model {
			continue
		}
		out = append(out, r)
	}
	sortNewestFirst(out)
	return limit(out, f.Limit), nil
}

// Close is a no-op.
func (h *MemoryHistory) Close() error { return nil }

// NopHistory discards everything.
type NopHistory struct{}

func (NopHistory) Save(context.Context, *ModelReport) error { return nil }

func (NopHistory) List(context.Context, Filter) ([]*ModelReport, error) { return nil, nil }

func (NopHistory) Close() error { return nil }

func sortNewestFirst(reports []*ModelReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}

func limit(reports []*ModelReport, n int) []*ModelReport {
	if n > 0 && len(reports) > n {
		return reports[:n]
	}
	return reports
}
