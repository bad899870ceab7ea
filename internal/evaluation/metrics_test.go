package evaluation

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNDCG_WorkedExample(t *testing.T) {
	rels := []int{2, 3, 0}

	dcg := 3 + 7/math.Log2(3)
	idcg := 7 + 3/math.Log2(3)

	assert.InDelta(t, dcg, DCG(rels, 10), 1e-12)
	assert.InDelta(t, idcg, IdealDCG(rels, 10), 1e-12)
	assert.InDelta(t, 0.834, NDCG(rels, 10), 1e-3)
	assert.InDelta(t, dcg/idcg, NDCG(rels, 100), 1e-12)
}

func TestNDCG_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		rels []int
		k    int
		want float64
	}{
		{"empty list", nil, 10, 0},
		{"all zero", []int{0, 0, 0}, 10, 0},
		{"all zero k=1", []int{0, 0, 0}, 1, 0},
		{"ideal order", []int{3, 2, 1, 0}, 10, 1},
		{"single relevant at top", []int{1}, 1, 1},
		{"relevant beyond cutoff", []int{0, 0, 2}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NDCG(tt.rels, tt.k), 1e-12)
		})
	}
}

func TestNDCG_CutoffTruncatesBothSums(t *testing.T) {
	// Ideal within the first two positions is [3,2] regardless of what
	// follows, so a perfect top two scores 1 at k=2.
	assert.InDelta(t, 1.0, NDCG([]int{3, 2, 0, 1}, 2), 1e-12)
	assert.Less(t, NDCG([]int{3, 2, 0, 1}, 4), 1.0)
}

func TestNDCG_Bounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		rels := make([]int, rng.Intn(30))
		for j := range rels {
			rels[j] = rng.Intn(4)
		}
		k := 1 + rng.Intn(40)

		v := NDCG(rels, k)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0+1e-12)

		sorted := append([]int(nil), rels...)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		if IdealDCG(rels, k) > 0 {
			assert.InDelta(t, 1.0, NDCG(sorted, k), 1e-12)
		}
	}
}

func TestNDCG_LargeGradesStayFinite(t *testing.T) {
	// 100 is the highest grade the judgments loader accepts.
	v := NDCG([]int{0, 100, 100, 1}, 10)
	assert.False(t, math.IsNaN(v))
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func TestRecallPrecision(t *testing.T) {
	rels := []int{1, 0, 2, 0}

	assert.InDelta(t, 0.25, Recall(rels, 1, 4), 1e-12)
	assert.InDelta(t, 0.5, Recall(rels, 10, 4), 1e-12)
	assert.Equal(t, 0.0, Recall(rels, 10, 0))

	assert.InDelta(t, 1.0, Precision(rels, 1), 1e-12)
	assert.InDelta(t, 0.5, Precision(rels, 4), 1e-12)
	assert.InDelta(t, 0.2, Precision(rels, 10), 1e-12)
	assert.Equal(t, 0.0, Precision(rels, 0))
}

func TestReciprocalRank(t *testing.T) {
	assert.Equal(t, 1.0, ReciprocalRank([]int{2, 0}))
	assert.Equal(t, 1.0/3, ReciprocalRank([]int{0, 0, 1}))
	assert.Equal(t, 0.0, ReciprocalRank([]int{0, 0}))
	assert.Equal(t, 0.0, ReciprocalRank(nil))
}

func TestAveragePrecision(t *testing.T) {
	// Relevant at ranks 1 and 3, with a third relevant document never
	// retrieved: (1/1 + 2/3) / 3.
	assert.InDelta(t, (1+2.0/3)/3, AveragePrecision([]int{1, 0, 1}, 3), 1e-12)
	assert.Equal(t, 0.0, AveragePrecision([]int{1}, 0))
}
