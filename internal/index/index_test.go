package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/rice-eval/internal/config"
)

func TestModelFromConfig_Defaults(t *testing.T) {
	tests := []struct {
		name string
		in   config.ModelConfig
		want Model
	}{
		{
			name: "bm25 zero params",
			in:   config.ModelConfig{Name: "bm25", Type: config.ModelBM25},
			want: Model{Name: "bm25", Type: BM25, K1: 1.2, B: 0.75},
		},
		{
			name: "bm25 explicit params",
			in:   config.ModelConfig{Name: "b", Type: config.ModelBM25, K1: 0.9, B: 0.4, Mu: 7},
			want: Model{Name: "b", Type: BM25, K1: 0.9, B: 0.4},
		},
		{
			name: "lmd zero mu",
			in:   config.ModelConfig{Name: "lmd", Type: config.ModelLMDirichlet},
			want: Model{Name: "lmd", Type: LMDirichlet, Mu: 2000},
		},
		{
			name: "lmd explicit mu drops bm25 params",
			in:   config.ModelConfig{Name: "lmd", Type: config.ModelLMDirichlet, Mu: 500, K1: 3},
			want: Model{Name: "lmd", Type: LMDirichlet, Mu: 500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelFromConfig(tt.in))
		})
	}
}

func TestModelsFromConfig_PreservesOrder(t *testing.T) {
	models := ModelsFromConfig(config.DefaultModels())
	require.Len(t, models, 2)
	assert.Equal(t, "bm25", models[0].Name)
	assert.Equal(t, "lmd", models[1].Name)
}

func TestModelString(t *testing.T) {
	assert.Equal(t, "bm25(k1=1.2,b=0.75)", Model{Name: "bm25", Type: BM25, K1: 1.2, B: 0.75}.String())
	assert.Equal(t, "lmd(mu=2000)", Model{Name: "lmd", Type: LMDirichlet, Mu: 2000}.String())
}

func TestModelSet(t *testing.T) {
	set, err := NewModelSet([]Model{{Name: "a", Type: BM25}, {Name: "b", Type: LMDirichlet}})
	require.NoError(t, err)

	m, err := set.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, LMDirichlet, m.Type)

	_, err = set.Lookup("c")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestModelSet_Rejects(t *testing.T) {
	_, err := NewModelSet(nil)
	assert.Error(t, err)

	_, err = NewModelSet([]Model{{Name: "a", Type: BM25}, {Name: "a", Type: BM25}})
	assert.Error(t, err)

	_, err = NewModelSet([]Model{{Name: "a", Type: "tfidf"}})
	assert.Error(t, err)
}

func TestParseError_MatchesSentinel(t *testing.T) {
	err := ParseError("a:b", errors.New("unexpected ':'"))
	assert.ErrorIs(t, err, ErrQueryParse)
	assert.Contains(t, err.Error(), `"a:b"`)
}
