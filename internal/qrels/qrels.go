// Package qrels loads and serves graded relevance judgments.
package qrels

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/lines"
)

// MaxRelevance is the highest accepted grade. The exponential gain 2^rel - 1
// overflows float64 above 1023, which turns nDCG into NaN.
const MaxRelevance = 100

// headerTokens are first-column values that mark a header line.
var headerTokens = map[string]bool{
	"topic":    true,
	"topic-id": true,
	"topic_id": true,
	"topicid":  true,
	"query-id": true,
	"query_id": true,
	"queryid":  true,
	"qid":      true,
}

// Entry is a single relevance judgment.
type Entry struct {
	TopicID    string `json:"topic_id"`
	DocumentID string `json:"document_id"`
	Relevance  int    `json:"relevance"`
}

// Store holds judgments keyed by topic then document. For a repeated
// (topic, document) pair the last judgment wins.
type Store struct {
	judgments map[string]map[string]int
	entries   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{judgments: make(map[string]map[string]int)}
}

// Add records a judgment, overwriting any earlier one for the same pair.
func (s *Store) Add(e Entry) {
	docs, ok := s.judgments[e.TopicID]
	if !ok {
		docs = make(map[string]int)
		s.judgments[e.TopicID] = docs
	}
	if _, exists := docs[e.DocumentID]; !exists {
		s.entries++
	}
	docs[e.DocumentID] = e.Relevance
}

// Relevance returns the grade for a pair, or 0 when unjudged.
func (s *Store) Relevance(topicID, documentID string) int {
	return s.judgments[topicID][documentID]
}

// Judgments returns a copy of the judgments for a topic.
func (s *Store) Judgments(topicID string) map[string]int {
	docs := s.judgments[topicID]
	out := make(map[string]int, len(docs))
	for d, r := range docs {
		out[d] = r
	}
	return out
}

// HasTopic reports whether any judgment exists for the topic.
func (s *Store) HasTopic(topicID string) bool {
	return len(s.judgments[topicID]) > 0
}

// CountAtLeast returns how many documents of the topic are graded at least
// minRelevance.
func (s *Store) CountAtLeast(topicID string, minRelevance int) int {
	n := 0
	for _, r := range s.judgments[topicID] {
		if r >= minRelevance {
			n++
		}
	}
	return n
}

// Topics returns the judged topic IDs in sorted order.
func (s *Store) Topics() []string {
	topics := make([]string, 0, len(s.judgments))
	for t := range s.judgments {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of distinct (topic, document) pairs.
func (s *Store) Len() int {
	return s.entries
}

// Load reads a judgment file. Malformed lines are skipped and reported as
// diagnostics; a missing or unreadable file is fatal.
func Load(path string) (*Store, []lines.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.IOError(path, err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse reads judgments from r; source names the input in diagnostics.
func Parse(r io.Reader, source string) (*Store, []lines.Diagnostic, error) {
	store := NewStore()
	var diags []lines.Diagnostic

	sc := lines.NewScanner(r)
	for sc.Scan() {
		entry, diag, ok := parseLine(sc.Text(), source, sc.Line())
		if diag != nil {
			diags = append(diags, *diag)
			continue
		}
		if ok {
			store.Add(entry)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, diags, apperrors.IOError(source, err)
	}

	return store, diags, nil
}

// parseLine returns ok=false without a diagnostic for lines that carry no
// record: blanks, comments and headers.
func parseLine(raw, source string, lineNo int) (Entry, *lines.Diagnostic, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Entry{}, nil, false
	}

	var fields []string
	if strings.Contains(raw, "\t") {
		fields = strings.Split(raw, "\t")
	} else {
		fields = strings.Fields(raw)
		// TREC layout: topic iteration document relevance
		if len(fields) == 4 {
			fields = []string{fields[0], fields[2], fields[3]}
		}
	}

	if headerTokens[strings.ToLower(strings.TrimSpace(fields[0]))] {
		return Entry{}, nil, false
	}

	if len(fields) < 3 {
		d := lines.NewDiagnostic(source, lineNo, "expected at least 3 fields", raw)
		return Entry{}, &d, false
	}

	rel, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		d := lines.NewDiagnostic(source, lineNo, "relevance is not an integer", raw)
		return Entry{}, &d, false
	}
	if rel < 0 {
		d := lines.NewDiagnostic(source, lineNo, "relevance must not be negative", raw)
		return Entry{}, &d, false
	}
	if rel > MaxRelevance {
		d := lines.NewDiagnostic(source, lineNo, "relevance exceeds "+strconv.Itoa(MaxRelevance), raw)
		return Entry{}, &d, false
	}

	return Entry{
		TopicID:    strings.TrimSpace(fields[0]),
		DocumentID: strings.TrimSpace(fields[1]),
		Relevance:  rel,
	}, nil, true
}
