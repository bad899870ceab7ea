// Package lines provides line-oriented scanning with record-level diagnostics.
package lines

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
)

const (
	initialBufferSize = 64 * 1024
	// MaxLineSize bounds a single record; corpus documents can be large.
	MaxLineSize = 64 * 1024 * 1024

	maxRawLength = 200
)

// Diagnostic describes a record that was skipped while parsing a file.
type Diagnostic struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// NewDiagnostic builds a diagnostic, truncating long raw input.
func NewDiagnostic(source string, line int, reason, raw string) Diagnostic {
	if len(raw) > maxRawLength {
		raw = raw[:maxRawLength] + "..."
	}
	return Diagnostic{Source: source, Line: line, Reason: reason, Raw: raw}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.Source, d.Line, d.Reason)
}

// Scanner reads lines and tracks the 1-based line number.
type Scanner struct {
	sc   *bufio.Scanner
	line int
}

// NewScanner returns a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialBufferSize), MaxLineSize)
	return &Scanner{sc: sc}
}

// Scan advances to the next line.
func (s *Scanner) Scan() bool {
	if !s.sc.Scan() {
		return false
	}
	s.line++
	return true
}

// Text returns the current line without its terminator or a trailing CR.
func (s *Scanner) Text() string {
	return strings.TrimSuffix(s.sc.Text(), "\r")
}

// Line returns the current line number.
func (s *Scanner) Line() int {
	return s.line
}

// Err returns the first non-EOF error.
func (s *Scanner) Err() error {
	return s.sc.Err()
}

// Log reports skipped records at warn level.
func Log(log *logger.Logger, diags []Diagnostic) {
	for _, d := range diags {
		log.Warn("Skipped malformed record",
			"source", d.Source,
			"line", d.Line,
			"reason", d.Reason,
			"raw", security.SanitizeForLog(d.Raw),
		)
	}
}
