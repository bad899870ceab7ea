package evaluation

// TopicResult contains metrics for a single topic.
type TopicResult struct {
	TopicID   string          `json:"topic_id"`
	NDCG      map[int]float64 `json:"ndcg"`
	Recall    map[int]float64 `json:"recall"`
	Precision map[int]float64 `json:"precision"`
	RR        float64         `json:"rr"`
	AP        float64         `json:"ap"`

	// Retrieved is the length of the topic's ranked list.
	Retrieved int `json:"retrieved"`

	// Relevant is the number of documents judged relevant for the topic.
	Relevant int `json:"relevant"`
}

// Summary aggregates metrics across the topics of a run.
type Summary struct {
	TopicCount    int             `json:"topic_count"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MRR           float64         `json:"mrr"`
	MAP           float64         `json:"map"`
}

// Result is the evaluation of one run.
type Result struct {
	Cutoffs  []int                   `json:"cutoffs"`
	PerTopic map[string]*TopicResult `json:"per_topic"`
	Summary  *Summary                `json:"summary"`

	// Unjudged lists run topics with no judgments at all. They still count
	// towards every mean, with nDCG 0.
	Unjudged []string `json:"unjudged,omitempty"`
}

// PerTopicNDCG returns topic -> cutoff -> nDCG.
func (r *Result) PerTopicNDCG() map[string]map[int]float64 {
	out := make(map[string]map[int]float64, len(r.PerTopic))
	for id, t := range r.PerTopic {
		out[id] = t.NDCG
	}
	return out
}

// MeanNDCG returns cutoff -> mean nDCG.
func (r *Result) MeanNDCG() map[int]float64 {
	return r.Summary.MeanNDCG
}
