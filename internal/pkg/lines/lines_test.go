package lines

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_LineNumbers(t *testing.T) {
	s := NewScanner(strings.NewReader("a\r\n\nc"))

	var got []string
	var nums []int
	for s.Scan() {
		got = append(got, s.Text())
		nums = append(nums, s.Line())
	}
	require.NoError(t, s.Err())

	assert.Equal(t, []string{"a", "", "c"}, got)
	assert.Equal(t, []int{1, 2, 3}, nums)
}

func TestScanner_LongLine(t *testing.T) {
	long := strings.Repeat("x", 1024*1024)
	s := NewScanner(strings.NewReader(long + "\nnext"))

	require.True(t, s.Scan())
	assert.Len(t, s.Text(), len(long))
	require.True(t, s.Scan())
	assert.Equal(t, "next", s.Text())
}

func TestNewDiagnostic_Truncates(t *testing.T) {
	d := NewDiagnostic("qrels.tsv", 4, "bad relevance", strings.Repeat("y", 500))

	assert.Len(t, d.Raw, maxRawLength+3)
	assert.Equal(t, "qrels.tsv:4: bad relevance", d.String())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", "text")

	Log(log, []Diagnostic{NewDiagnostic("queries.jsonl", 2, "invalid json", "{")})

	assert.Contains(t, buf.String(), "Skipped malformed record")
	assert.Contains(t, buf.String(), "queries.jsonl")
}
