package evaluation

import (
	"fmt"
	"sort"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/runfile"
)

// DefaultCutoffs are the standard nDCG depths.
var DefaultCutoffs = []int{10, 100}

// Evaluator scores runs against a fixed set of judgments.
type Evaluator struct {
	qrels   *qrels.Store
	cutoffs []int
}

// NewEvaluator creates an evaluator. Cutoffs are sorted and deduplicated;
// an empty list means DefaultCutoffs.
func NewEvaluator(store *qrels.Store, cutoffs []int) (*Evaluator, error) {
	if store == nil {
		store = qrels.NewStore()
	}
	if len(cutoffs) == 0 {
		cutoffs = DefaultCutoffs
	}

	seen := make(map[int]bool, len(cutoffs))
	ks := make([]int, 0, len(cutoffs))
	for _, k := range cutoffs {
		if k < 1 {
			return nil, errors.ValidationError(fmt.Sprintf("invalid cutoff %d (must be positive)", k))
		}
		if !seen[k] {
			seen[k] = true
			ks = append(ks, k)
		}
	}
	sort.Ints(ks)

	return &Evaluator{qrels: store, cutoffs: ks}, nil
}

// Cutoffs returns the evaluated depths in ascending order.
func (e *Evaluator) Cutoffs() []int {
	out := make([]int, len(e.cutoffs))
	copy(out, e.cutoffs)
	return out
}

// Evaluate scores every topic of the run. The mean is taken over the run's
// topics only: judged topics the run never retrieved for are ignored, and
// topics with an empty list are excluded rather than counted as zero.
func (e *Evaluator) Evaluate(run *runfile.Run) (*Result, error) {
	res := &Result{
		Cutoffs:  e.Cutoffs(),
		PerTopic: make(map[string]*TopicResult, len(run.Topics)),
	}

	results := make([]*TopicResult, 0, len(run.Topics))
	for _, topicID := range run.TopicIDs() {
		records := run.Topics[topicID]
		if len(records) == 0 {
			continue
		}

		tr, err := e.EvaluateTopic(topicID, records)
		if err != nil {
			return nil, err
		}
		if !e.qrels.HasTopic(topicID) {
			res.Unjudged = append(res.Unjudged, topicID)
		}

		res.PerTopic[topicID] = tr
		results = append(results, tr)
	}

	res.Summary = Summarize(results, res.Cutoffs)
	return res, nil
}

// EvaluateTopic scores one topic's records, which may be in any order.
func (e *Evaluator) EvaluateTopic(topicID string, records []runfile.Record) (*TopicResult, error) {
	relevances, err := e.rankedRelevances(topicID, records)
	if err != nil {
		return nil, err
	}

	totalRelevant := e.qrels.CountAtLeast(topicID, RelevantThreshold)

	result := &TopicResult{
		TopicID:   topicID,
		NDCG:      make(map[int]float64, len(e.cutoffs)),
		Recall:    make(map[int]float64, len(e.cutoffs)),
		Precision: make(map[int]float64, len(e.cutoffs)),
		RR:        ReciprocalRank(relevances),
		AP:        AveragePrecision(relevances, totalRelevant),
		Retrieved: len(relevances),
		Relevant:  totalRelevant,
	}

	for _, k := range e.cutoffs {
		result.NDCG[k] = NDCG(relevances, k)
		result.Recall[k] = Recall(relevances, k, totalRelevant)
		result.Precision[k] = Precision(relevances, k)
	}

	return result, nil
}

// rankedRelevances orders records by stored rank and looks up each grade.
// Two records sharing a rank make the order undefined and are rejected.
func (e *Evaluator) rankedRelevances(topicID string, records []runfile.Record) ([]int, error) {
	ranked := make([]runfile.Record, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank < ranked[j].Rank })

	relevances := make([]int, len(ranked))
	for i, rec := range ranked {
		if i > 0 && rec.Rank == ranked[i-1].Rank {
			return nil, errors.IntegrityError(fmt.Sprintf(
				"topic %s: rank %d is shared by documents %s and %s",
				topicID, rec.Rank, ranked[i-1].DocumentID, rec.DocumentID,
			)).WithDetail("topic_id", topicID)
		}
		relevances[i] = e.qrels.Relevance(topicID, rec.DocumentID)
	}
	return relevances, nil
}

// Evaluate scores run against store at the given cutoffs.
func Evaluate(run *runfile.Run, store *qrels.Store, cutoffs []int) (*Result, error) {
	e, err := NewEvaluator(store, cutoffs)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(run)
}

// Summarize aggregates results across topics. With no topics every mean
// is 0.
func Summarize(results []*TopicResult, cutoffs []int) *Summary {
	summary := &Summary{
		TopicCount:    len(results),
		MeanNDCG:      make(map[int]float64, len(cutoffs)),
		MeanRecall:    make(map[int]float64, len(cutoffs)),
		MeanPrecision: make(map[int]float64, len(cutoffs)),
	}
	for _, k := range cutoffs {
		summary.MeanNDCG[k] = 0
		summary.MeanRecall[k] = 0
		summary.MeanPrecision[k] = 0
	}

	if len(results) == 0 {
		return summary
	}

	// Aggregate
	for _, r := range results {
		summary.MRR += r.RR
		summary.MAP += r.AP

		for k, v := range r.NDCG {
			summary.MeanNDCG[k] += v
		}
		for k, v := range r.Recall {
			summary.MeanRecall[k] += v
		}
		for k, v := range r.Precision {
			summary.MeanPrecision[k] += v
		}
	}

	// Average
	n := float64(len(results))
	summary.MRR /= n
	summary.MAP /= n

	for k := range summary.MeanNDCG {
		summary.MeanNDCG[k] /= n
	}
	for k := range summary.MeanRecall {
		summary.MeanRecall[k] /= n
	}
	for k := range summary.MeanPrecision {
		summary.MeanPrecision[k] /= n
	}

	return summary
}
