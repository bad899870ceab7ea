// Package report renders evaluation results and keeps a history of them.
package report

import (
	"time"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/index"
)

// ModelReport is the outcome of evaluating one scoring model.
type ModelReport struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Params    string `json:"params"`
	RunPath   string `json:"run_path,omitempty"`

	TopicCount    int             `json:"topic_count"`
	Cutoffs       []int           `json:"cutoffs"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MRR           float64         `json:"mrr"`
	MAP           float64         `json:"map"`
	Unjudged      int             `json:"unjudged"`

	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`

	// PerTopic maps topic -> cutoff -> nDCG. Omitted from history.
	PerTopic map[string]map[int]float64 `json:"per_topic,omitempty"`
}

// FromEvaluation builds a report for model from an evaluation result.
func FromEvaluation(sessionID string, model index.Model, runPath string, res *evaluation.Result, elapsed time.Duration) *ModelReport {
	return &ModelReport{
		SessionID:     sessionID,
		Model:         model.Name,
		Params:        model.String(),
		RunPath:       runPath,
		TopicCount:    res.Summary.TopicCount,
		Cutoffs:       res.Cutoffs,
		MeanNDCG:      res.Summary.MeanNDCG,
		MeanRecall:    res.Summary.MeanRecall,
		MeanPrecision: res.Summary.MeanPrecision,
		MRR:           res.Summary.MRR,
		MAP:           res.Summary.MAP,
		Unjudged:      len(res.Unjudged),
		Duration:      elapsed,
		CreatedAt:     time.Now().UTC(),
		PerTopic:      res.PerTopicNDCG(),
	}
}

// Summary returns a copy without per-topic detail.
func (r *ModelReport) Summary() *ModelReport {
	c := *r
	c.PerTopic = nil
	return &c
}
