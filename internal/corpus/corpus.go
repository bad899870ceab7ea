// Package corpus reads corpus documents and queries from JSON-lines files.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/lines"
)

// Record is one JSON line of a corpus or query file.
type Record struct {
	ID   string `json:"_id" validate:"required,nowhitespace"`
	Text string `json:"text"`
}

// Document is a corpus entry to be indexed.
type Document struct {
	ID   string
	Text string
}

// Query is an evaluation topic.
type Query struct {
	ID   string
	Text string
}

// Reader parses records lazily, one line at a time.
type Reader struct {
	source   string
	scanner  *lines.Scanner
	validate *validator.Validate
}

// NewReader returns a Reader over r; source names the input in diagnostics.
func NewReader(r io.Reader, source string) *Reader {
	v := validator.New()
	_ = v.RegisterValidation("nowhitespace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})

	return &Reader{
		source:   source,
		scanner:  lines.NewScanner(r),
		validate: v,
	}
}

// Next returns the next record. A malformed line yields a diagnostic instead
// of a record. io.EOF signals the end of input; any other error is fatal.
func (r *Reader) Next() (Record, *lines.Diagnostic, error) {
	for r.scanner.Scan() {
		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			d := lines.NewDiagnostic(r.source, r.scanner.Line(), fmt.Sprintf("invalid json: %v", err), raw)
			return Record{}, &d, nil
		}
		if err := r.validate.Struct(rec); err != nil {
			d := lines.NewDiagnostic(r.source, r.scanner.Line(), validationReason(err), raw)
			return Record{}, &d, nil
		}
		return rec, nil, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, nil, apperrors.IOError(r.source, err)
	}
	return Record{}, nil, io.EOF
}

// validationReason names the first failed rule. IDs are written as single
// columns of a run, so whitespace inside one cannot be read back.
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "nowhitespace" {
		return "_id contains whitespace"
	}
	return "missing _id"
}

// Each folds every valid record of the file at path through fn and collects
// diagnostics for the rest. A missing file is a fatal I/O error.
func Each(ctx context.Context, path string, fn func(Record) error) ([]lines.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IOError(path, err)
	}
	defer f.Close()

	var diags []lines.Diagnostic
	r := NewReader(f, path)
	for {
		if err := ctx.Err(); err != nil {
			return diags, err
		}

		rec, diag, err := r.Next()
		if errors.Is(err, io.EOF) {
			return diags, nil
		}
		if err != nil {
			return diags, err
		}
		if diag != nil {
			diags = append(diags, *diag)
			continue
		}
		if err := fn(rec); err != nil {
			return diags, err
		}
	}
}

// EachDocument streams corpus documents from every path in order.
func EachDocument(ctx context.Context, paths []string, fn func(Document) error) ([]lines.Diagnostic, error) {
	var all []lines.Diagnostic
	for _, path := range paths {
		diags, err := Each(ctx, path, func(rec Record) error {
			return fn(Document{ID: rec.ID, Text: rec.Text})
		})
		all = append(all, diags...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// LoadQueries reads every query in the file at path, preserving file order.
func LoadQueries(ctx context.Context, path string) ([]Query, []lines.Diagnostic, error) {
	var queries []Query
	diags, err := Each(ctx, path, func(rec Record) error {
		queries = append(queries, Query{ID: rec.ID, Text: rec.Text})
		return nil
	})
	if err != nil {
		return nil, diags, err
	}
	return queries, diags, nil
}
