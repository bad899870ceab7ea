package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/report"
)

func writeJournal(t *testing.T, path string, entries ...bus.JournalEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		require.NoError(t, enc.Encode(e))
	}
}

func completed(model string, ndcg float64, at time.Time) bus.JournalEntry {
	rep := &report.ModelReport{
		SessionID: "s1",
		Model:     model,
		Cutoffs:   []int{10},
		MeanNDCG:  map[int]float64{10: ndcg},
		CreatedAt: at,
	}
	return bus.JournalEntry{
		Topic:    bus.TopicEvaluationCompleted,
		Event:    bus.NewEvent(bus.TopicEvaluationCompleted, "pipeline", "s1", rep),
		Recorded: at,
	}
}

func TestReplayCmd(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "events.jsonl")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeJournal(t, journal,
		bus.JournalEntry{
			Topic:    bus.TopicRunWritten,
			Event:    bus.NewEvent(bus.TopicRunWritten, "pipeline", "s1", map[string]any{"model": "bm25"}),
			Recorded: at,
		},
		completed("lmd", 0.25, at.Add(time.Second)),
		completed("bm25", 0.5, at),
	)

	out, err := execute(t, "replay", "--journal", journal)
	require.NoError(t, err)
	assert.Equal(t, "[bm25] Avg nDCG@10: 0.5000\n[lmd] Avg nDCG@10: 0.2500\n", out)
}

func TestReplayCmd_Since(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "events.jsonl")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	writeJournal(t, journal,
		completed("old", 0.1, at),
		completed("new", 0.9, at.Add(time.Hour)),
	)

	out, err := execute(t, "replay", "--journal", journal, "--since", at.Add(time.Minute).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, "[new] Avg nDCG@10: 0.9000\n", out)
}

func TestReplayCmd_Errors(t *testing.T) {
	_, err := execute(t, "replay")
	assert.Error(t, err, "a journal path is required")

	journal := filepath.Join(t.TempDir(), "events.jsonl")
	_, err = execute(t, "replay", "--journal", journal, "--since", "yesterday")
	assert.Error(t, err)
}

func TestReplayCmd_MissingJournalIsEmpty(t *testing.T) {
	out, err := execute(t, "replay", "--journal", filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, err = parseSince("2026-03-01T12:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got)

	_, err = parseSince("-1h", now)
	assert.Error(t, err)
}

func TestDecodeReport(t *testing.T) {
	_, err := decodeReport(map[string]any{"session_id": "s1"})
	assert.Error(t, err)

	r, err := decodeReport(map[string]any{"model": "bm25", "mean_ndcg": map[string]any{"10": 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 0.5, r.MeanNDCG[10])
}
