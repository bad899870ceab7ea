package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Write renders reports in the given format.
func Write(w io.Writer, format string, reports []*ModelReport) error {
	switch format {
	case FormatText, "":
		return writeText(w, reports)
	case FormatMarkdown:
		return writeMarkdown(w, reports)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	default:
		return errors.ValidationError(fmt.Sprintf("unknown report format %q", format))
	}
}

// writeText prints one line per model:
//
//	[bm25] Avg nDCG@10: 0.4213 | Avg nDCG@100: 0.5120
func writeText(w io.Writer, reports []*ModelReport) error {
	for _, r := range reports {
		parts := make([]string, 0, len(r.Cutoffs))
		for _, k := range r.Cutoffs {
			parts = append(parts, fmt.Sprintf("Avg nDCG@%d: %.4f", k, r.MeanNDCG[k]))
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n", r.Model, strings.Join(parts, " | ")); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkdown(w io.Writer, reports []*ModelReport) error {
	if len(reports) == 0 {
		return nil
	}
	cutoffs := reports[0].Cutoffs

	var b strings.Builder
	b.WriteString("| Model | Topics |")
	for _, k := range cutoffs {
		fmt.Fprintf(&b, " nDCG@%d |", k)
	}
	b.WriteString(" MRR | MAP |\n|---|---:|")
	for range cutoffs {
		b.WriteString("---:|")
	}
	b.WriteString("---:|---:|\n")

	for _, r := range reports {
		fmt.Fprintf(&b, "| %s | %d |", r.Params, r.TopicCount)
		for _, k := range cutoffs {
			fmt.Fprintf(&b, " %.4f |", r.MeanNDCG[k])
		}
		fmt.Fprintf(&b, " %.4f | %.4f |\n", r.MRR, r.MAP)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
