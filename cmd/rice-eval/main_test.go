package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/rice-eval/internal/config"
)

const testQrels = "query-id\tcorpus-id\tscore\nq1\td3\t2\nq1\td2\t1\nq2\td1\t1\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rice-eval dev")
	assert.Contains(t, out, "commit: none")
}

func TestEvaluateCmd(t *testing.T) {
	dir := t.TempDir()
	qrelsPath := writeFile(t, dir, "test.tsv", testQrels)
	run := writeFile(t, dir, "bm25.run",
		"q1 Q0 d3 1 2.0 bm25\nq1 Q0 d2 2 1.0 bm25\nq2 Q0 d1 1 1.5 bm25\n")

	out, err := execute(t, "evaluate", run, "--qrels", qrelsPath, "--ks", "10")
	require.NoError(t, err)
	assert.Equal(t, "[bm25] Avg nDCG@10: 1.0000\n", out)
}

func TestEvaluateCmd_Markdown(t *testing.T) {
	dir := t.TempDir()
	qrelsPath := writeFile(t, dir, "test.tsv", testQrels)
	run := writeFile(t, dir, "bm25.run", "q1 Q0 d3 1 2.0 bm25\n")

	out, err := execute(t, "evaluate", run, "--qrels", qrelsPath, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "| Model | Topics |")
	assert.Contains(t, out, "nDCG@10")
	assert.Contains(t, out, "nDCG@100")
}

func TestEvaluateCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	qrelsPath := writeFile(t, dir, "test.tsv", testQrels)

	_, err := execute(t, "evaluate", "--qrels", qrelsPath)
	assert.Error(t, err, "run file argument is required")

	_, err = execute(t, "evaluate", filepath.Join(dir, "missing.run"), "--qrels", qrelsPath)
	assert.Error(t, err)

	_, err = execute(t, "evaluate", filepath.Join(dir, "x.run"), "--qrels", filepath.Join(dir, "missing.tsv"))
	assert.Error(t, err)

	_, err = execute(t, "evaluate", filepath.Join(dir, "x.run"), "--qrels", qrelsPath, "--format", "xml")
	assert.Error(t, err)
}

func TestRunCmd(t *testing.T) {
	dir := t.TempDir()
	corpus := writeFile(t, dir, "corpus.jsonl", `{"_id":"d1","text":"The cat sat on the mat"}
{"_id":"d2","text":"Dogs chase cats"}
{"_id":"d3","text":"A dog and a cat and a dog"}
`)
	queries := writeFile(t, dir, "queries.jsonl", `{"_id":"q1","text":"Dog"}
{"_id":"q2","text":"CAT"}
`)
	qrelsPath := writeFile(t, dir, "test.tsv", testQrels)
	runDir := filepath.Join(dir, "runs")
	require.NoError(t, os.Mkdir(runDir, 0o755))

	out, err := execute(t, "run",
		"--corpus", corpus,
		"--queries", queries,
		"--qrels", qrelsPath,
		"--run-dir", runDir,
		"--progress=false",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "[bm25] Avg nDCG@10:")
	assert.Contains(t, out, "[lmd] Avg nDCG@10:")

	assert.FileExists(t, filepath.Join(runDir, "bm25.run"))
	assert.FileExists(t, filepath.Join(runDir, "lmd.run"))
}

func TestApplyFlags(t *testing.T) {
	cmd := runCmd()
	cmd.Flags().String("format", "", "")
	cmd.Flags().String("qrels", "", "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--backend", "qdrant",
		"--top-k", "50",
		"--workers", "8",
		"--corpus", "a.jsonl,b.jsonl",
		"--parallel-models",
		"--ks", "5,20",
		"--format", "json",
	}))

	cfg := config.Default()
	require.NoError(t, applyFlags(cmd, cfg))

	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, 50, cfg.Retrieval.TopK)
	assert.Equal(t, 8, cfg.Retrieval.Workers)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl"}, cfg.Data.CorpusPaths)
	assert.True(t, cfg.Retrieval.ParallelModels)
	assert.Equal(t, []int{5, 20}, cfg.Evaluation.Cutoffs)
	assert.Equal(t, "json", cfg.Report.Format)

	// Unset flags keep config values.
	assert.Equal(t, "test.tsv", cfg.Data.QrelsPath)
	assert.Equal(t, "queries.jsonl", cfg.Data.QueriesPath)
}
