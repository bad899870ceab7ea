package qrels

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

func TestParse_LastWriteWins(t *testing.T) {
	store, diags, err := Parse(strings.NewReader("t1\td1\t1\nt1\td1\t3\n"), "qrels.tsv")
	require.NoError(t, err)

	assert.Empty(t, diags)
	assert.Equal(t, 3, store.Relevance("t1", "d1"))
	assert.Equal(t, 1, store.Len())
}

func TestParse_SkipsHeaderBlankAndComments(t *testing.T) {
	input := strings.Join([]string{
		"query-id\tcorpus-id\tscore",
		"",
		"# judged by assessor 3",
		"t1\td1\t2",
		"  TOPIC\tdoc\trel",
	}, "\n")

	store, diags, err := Parse(strings.NewReader(input), "qrels.tsv")
	require.NoError(t, err)

	assert.Empty(t, diags)
	assert.Equal(t, 2, store.Relevance("t1", "d1"))
	assert.Equal(t, []string{"t1"}, store.Topics())
}

func TestParse_MalformedLinesAreRecoverable(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"too few fields", "t1\td1", "expected at least 3 fields"},
		{"non-integer relevance", "t1\td1\thigh", "relevance is not an integer"},
		{"fractional relevance", "t1\td1\t1.5", "relevance is not an integer"},
		{"negative relevance", "t1\td1\t-1", "relevance must not be negative"},
		{"relevance above the maximum", "t1\td1\t1024", "relevance exceeds 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.line + "\nt2\td9\t1\n"
			store, diags, err := Parse(strings.NewReader(input), "qrels.tsv")
			require.NoError(t, err)

			require.Len(t, diags, 1)
			assert.Equal(t, 1, diags[0].Line)
			assert.Equal(t, tt.reason, diags[0].Reason)
			assert.Equal(t, 1, store.Relevance("t2", "d9"))
		})
	}
}

func TestParse_MaximumRelevanceAccepted(t *testing.T) {
	store, diags, err := Parse(strings.NewReader("t1\td1\t100\nt1\td2\t101\n"), "qrels.tsv")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, MaxRelevance, store.Relevance("t1", "d1"))
	assert.Equal(t, 0, store.Relevance("t1", "d2"))
}

func TestParse_ExtraFieldsIgnored(t *testing.T) {
	store, _, err := Parse(strings.NewReader("t1\td1\t2\textra\n"), "qrels.tsv")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Relevance("t1", "d1"))
}

func TestParse_TRECLayout(t *testing.T) {
	store, diags, err := Parse(strings.NewReader("301 0 FBIS3-10082 1\n301 0 FBIS3-10169 0\n"), "qrels.trec")
	require.NoError(t, err)

	assert.Empty(t, diags)
	assert.Equal(t, 1, store.Relevance("301", "FBIS3-10082"))
	assert.Equal(t, 0, store.Relevance("301", "FBIS3-10169"))
	assert.Equal(t, 2, store.Len())
}

func TestRelevance_UnjudgedIsZero(t *testing.T) {
	store := NewStore()
	store.Add(Entry{TopicID: "t1", DocumentID: "d1", Relevance: 2})

	assert.Equal(t, 0, store.Relevance("t1", "d2"))
	assert.Equal(t, 0, store.Relevance("t9", "d1"))
}

func TestCountAtLeast(t *testing.T) {
	store := NewStore()
	store.Add(Entry{TopicID: "t1", DocumentID: "d1", Relevance: 2})
	store.Add(Entry{TopicID: "t1", DocumentID: "d2", Relevance: 0})
	store.Add(Entry{TopicID: "t1", DocumentID: "d3", Relevance: 1})

	assert.Equal(t, 2, store.CountAtLeast("t1", 1))
	assert.Equal(t, 1, store.CountAtLeast("t1", 2))
	assert.Equal(t, 0, store.CountAtLeast("t2", 1))
	assert.True(t, store.HasTopic("t1"))
	assert.False(t, store.HasTopic("t2"))
}

func TestJudgments_ReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Add(Entry{TopicID: "t1", DocumentID: "d1", Relevance: 2})

	j := store.Judgments("t1")
	j["d1"] = 0

	assert.Equal(t, 2, store.Relevance("t1", "d1"))
	assert.Empty(t, store.Judgments("missing"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tsv")
	require.NoError(t, os.WriteFile(path, []byte("query-id\tcorpus-id\tscore\nq1\tdoc1\t1\n"), 0644))

	store, diags, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 1, store.Relevance("q1", "doc1"))
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.tsv"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIO))
}
