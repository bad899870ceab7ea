package hash

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{
			[]byte("hello"),
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			[]byte(""),
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.want, SHA256(tt.input))
		})
	}
}

func TestSHA256String(t *testing.T) {
	assert.Equal(t, SHA256([]byte("hello")), SHA256String("hello"))
}

func TestSHA256Short(t *testing.T) {
	full := SHA256([]byte("hello"))

	assert.Equal(t, full[:8], SHA256Short([]byte("hello"), 8))
	assert.Equal(t, full[:16], SHA256Short([]byte("hello"), 16))
	assert.Equal(t, full, SHA256Short([]byte("hello"), 1000))
}

func TestTermIndex(t *testing.T) {
	// FNV-1a 32 reference values.
	assert.Equal(t, uint32(0x811c9dc5), TermIndex(""))
	assert.Equal(t, uint32(0xe40c292c), TermIndex("a"))
	assert.Equal(t, TermIndex("retriev"), TermIndex("retriev"))
	assert.NotEqual(t, TermIndex("retriev"), TermIndex("evalu"))
}

func TestPointID(t *testing.T) {
	id := PointID("doc-1")

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	assert.Equal(t, id, PointID("doc-1"))
	assert.NotEqual(t, id, PointID("doc-2"))
}
