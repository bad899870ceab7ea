// Package runfile reads and writes ranked result lists in the six-column
// "topic Q0 document rank score tag" format.
package runfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/lines"
)

// Placeholder is the fixed legacy second column.
const Placeholder = "Q0"

// minFields is the fewest columns a line may carry and still be ranked;
// the run tag is optional on read.
const minFields = 5

// Hit is one ranked search result for a query.
type Hit struct {
	DocumentID string  `json:"document_id"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
}

// Record is one persisted line of a run.
type Record struct {
	TopicID    string  `json:"topic_id"`
	DocumentID string  `json:"document_id"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Tag        string  `json:"tag,omitempty"`
}

// TopicResult is the ranked list produced for one topic.
type TopicResult struct {
	TopicID string
	Hits    []Hit
}

// Run groups records by topic. Lists are in storage order, not rank order.
type Run struct {
	Tag    string
	Topics map[string][]Record
}

// NewRun returns an empty run.
func NewRun(tag string) *Run {
	return &Run{Tag: tag, Topics: make(map[string][]Record)}
}

// Add appends a record to its topic.
func (r *Run) Add(rec Record) {
	r.Topics[rec.TopicID] = append(r.Topics[rec.TopicID], rec)
}

// TopicIDs returns the run's topics in sorted order.
func (r *Run) TopicIDs() []string {
	ids := make([]string, 0, len(r.Topics))
	for id := range r.Topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the total number of records.
func (r *Run) Len() int {
	n := 0
	for _, recs := range r.Topics {
		n += len(recs)
	}
	return n
}

// Validate rejects identifiers that would not survive a read back: an empty
// topic or document ID, or one containing whitespace, shifts the columns.
func Validate(results []TopicResult, tag string) error {
	if strings.ContainsFunc(tag, unicode.IsSpace) {
		return apperrors.ValidationError(fmt.Sprintf("run tag %q contains whitespace", tag))
	}
	for _, res := range results {
		if len(res.Hits) == 0 {
			continue
		}
		if !isField(res.TopicID) {
			return apperrors.ValidationError(fmt.Sprintf("topic id %q is empty or contains whitespace", res.TopicID)).
				WithDetail("topic_id", res.TopicID)
		}
		for _, h := range res.Hits {
			if !isField(h.DocumentID) {
				return apperrors.ValidationError(fmt.Sprintf("topic %s: document id %q is empty or contains whitespace", res.TopicID, h.DocumentID)).
					WithDetail("topic_id", res.TopicID).
					WithDetail("document_id", h.DocumentID)
			}
		}
	}
	return nil
}

func isField(s string) bool {
	return s != "" && !strings.ContainsFunc(s, unicode.IsSpace)
}

// Write emits one line per hit in production order. Nothing is written if
// Validate rejects the results.
func Write(w io.Writer, results []TopicResult, tag string) error {
	if err := Validate(results, tag); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for _, res := range results {
		for _, h := range res.Hits {
			if _, err := fmt.Fprintf(bw, "%s %s %s %d %.4f %s\n",
				res.TopicID, Placeholder, h.DocumentID, h.Rank, h.Score, tag); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile writes a run to path, creating parent directories as needed.
// Invalid results fail before the file is created.
func WriteFile(path string, results []TopicResult, tag string) error {
	if err := Validate(results, tag); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, "creating run directory", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("creating %s", path), err)
	}

	if err := Write(f, results, tag); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing %s", path), err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("closing %s", path), err)
	}
	return nil
}

// Read parses a run. Any malformed line fails the whole run, since a
// partially read ranking cannot be trusted.
func Read(r io.Reader, source string) (*Run, error) {
	run := NewRun("")

	sc := lines.NewScanner(r)
	for sc.Scan() {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		rec, err := parseLine(raw, source, sc.Line())
		if err != nil {
			return nil, err
		}
		if run.Tag == "" {
			run.Tag = rec.Tag
		}
		run.Add(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.IOError(source, err)
	}

	return run, nil
}

// ReadFile parses the run file at path.
func ReadFile(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IOError(path, err)
	}
	defer f.Close()

	return Read(f, path)
}

func parseLine(raw, source string, lineNo int) (Record, error) {
	parts := strings.Split(raw, " ")
	fields := parts[:0]
	for _, p := range parts {
		if p != "" {
			fields = append(fields, p)
		}
	}

	if len(fields) < minFields {
		return Record{}, apperrors.FormatError(source, lineNo,
			fmt.Sprintf("expected 6 space-separated fields, got %d", len(fields)))
	}

	rank, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, apperrors.FormatError(source, lineNo, fmt.Sprintf("invalid rank %q", fields[3]))
	}

	score, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Record{}, apperrors.FormatError(source, lineNo, fmt.Sprintf("invalid score %q", fields[4]))
	}

	rec := Record{
		TopicID:    fields[0],
		DocumentID: fields[2],
		Rank:       rank,
		Score:      score,
	}
	if len(fields) > minFields {
		rec.Tag = fields[5]
	}
	return rec, nil
}
