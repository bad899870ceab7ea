package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	a := English()

	assert.Equal(t, []string{"run", "dog"}, a.Terms("The Running dogs"))
	assert.Nil(t, a.Terms(""))
	assert.Empty(t, a.Terms("the and of"))
}

func TestFrequencies(t *testing.T) {
	a := English()

	freqs, total := a.Frequencies("dogs chase dogs")
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, freqs["dog"])
	assert.Equal(t, 1, freqs["chase"])
}

func TestAnalyze_MatchesTerms(t *testing.T) {
	a := English()

	text := "A dog and a cat and a dog"
	tokens := a.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	assert.Equal(t, a.Terms(text), terms)
	assert.Len(t, tokens, 3)
}
