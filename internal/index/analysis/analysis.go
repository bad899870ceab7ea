// Package analysis turns text into index terms with the English analyzer:
// unicode tokenization, possessive stripping, lowercasing, stop words and
// Porter stemming.
package analysis

import (
	blugeanalysis "github.com/blugelabs/bluge/analysis"
	"github.com/blugelabs/bluge/analysis/lang/en"
)

// Analyzer produces terms from text. It holds no per-call state and is
// safe for concurrent use.
type Analyzer struct {
	inner *blugeanalysis.Analyzer
}

// English returns the English analyzer.
func English() *Analyzer {
	return &Analyzer{inner: en.NewAnalyzer()}
}

// Analyze returns the non-empty tokens of input, so the analyzer can be
// attached to bluge text fields and field lengths agree with Terms.
func (a *Analyzer) Analyze(input []byte) blugeanalysis.TokenStream {
	tokens := a.inner.Analyze(input)
	kept := tokens[:0]
	for _, tok := range tokens {
		if len(tok.Term) > 0 {
			kept = append(kept, tok)
		}
	}
	return kept
}

// Terms returns the analyzed terms of text in order, duplicates kept.
func (a *Analyzer) Terms(text string) []string {
	if text == "" {
		return nil
	}
	tokens := a.inner.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok.Term) == 0 {
			continue
		}
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// Frequencies counts each analyzed term of text and returns the total
// number of terms.
func (a *Analyzer) Frequencies(text string) (map[string]int, int) {
	terms := a.Terms(text)
	freqs := make(map[string]int, len(terms))
	for _, t := range terms {
		freqs[t]++
	}
	return freqs, len(terms)
}
