package evaluation

import (
	"math"
	"sort"
)

// RelevantThreshold is the lowest grade counted as relevant by the binary
// metrics.
const RelevantThreshold = 1

// DCG sums the exponential gain (2^rel - 1) of the first k grades, each
// discounted by log2(position + 1) with 1-based positions.
func DCG(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}

	dcg := 0.0
	for i := 0; i < k; i++ {
		gain := math.Exp2(float64(relevances[i])) - 1
		dcg += gain / math.Log2(float64(i+2))
	}
	return dcg
}

// IdealDCG is the DCG of the same grades sorted best first.
func IdealDCG(relevances []int, k int) float64 {
	sorted := make([]int, len(relevances))
	copy(sorted, relevances)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return DCG(sorted, k)
}

// NDCG calculates Normalized Discounted Cumulative Gain at K. It is 0 when
// no grade in the list is positive.
func NDCG(relevances []int, k int) float64 {
	idcg := IdealDCG(relevances, k)
	if idcg == 0 {
		return 0
	}
	return DCG(relevances, k) / idcg
}

// Recall calculates Recall at K against the number of relevant documents
// judged for the topic.
func Recall(relevances []int, k int, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	return float64(countRelevant(relevances, k)) / float64(totalRelevant)
}

// Precision calculates Precision at K. Missing ranks count as
// non-relevant, so the denominator is always k.
func Precision(relevances []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countRelevant(relevances, k)) / float64(k)
}

func countRelevant(relevances []int, k int) int {
	if k > len(relevances) {
		k = len(relevances)
	}
	n := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= RelevantThreshold {
			n++
		}
	}
	return n
}

// ReciprocalRank is 1/rank of the first relevant document, or 0.
func ReciprocalRank(relevances []int) float64 {
	for i, r := range relevances {
		if r >= RelevantThreshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision averages precision at each relevant rank over every
// relevant document judged for the topic; unretrieved ones contribute 0.
func AveragePrecision(relevances []int, totalRelevant int) float64 {
	if totalRelevant == 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r >= RelevantThreshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}
	return sumPrecision / float64(totalRelevant)
}
