package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	got := Chunk("Acme builds excavators.", 100, 20)
	assert.Equal(t, []string{"Acme builds excavators."}, got)
}

func TestChunk_EmptyText(t *testing.T) {
	assert.Nil(t, Chunk("   ", 100, 20))
	assert.Nil(t, Chunk("text", 0, 0))
}

func TestChunk_RespectsMaxChars(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Acme provides industrial services to regional manufacturers. ")
	}
	chunks := Chunk(b.String(), 200, 50)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 200)
	}
}

func TestChunk_OverlapCarriesTrailingSentence(t *testing.T) {
	text := "First sentence about the company. Second sentence about growth. Third sentence about plans. Fourth sentence about markets."
	chunks := Chunk(text, 70, 40)
	require.Greater(t, len(chunks), 1)
	// Each successive chunk starts with the trailing sentence of the previous.
	for i := 1; i < len(chunks); i++ {
		prev := SplitSentences(chunks[i-1])
		require.NotEmpty(t, prev)
		assert.True(t, strings.HasPrefix(chunks[i], prev[len(prev)-1]),
			"chunk %d should start with the last sentence of chunk %d", i, i-1)
	}
}

func TestChunk_OversizedSentenceHardSplit(t *testing.T) {
	long := strings.Repeat("x", 250)
	chunks := Chunk(long, 100, 20)
	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, 100, len(chunks[1]))
	assert.Equal(t, 50, len(chunks[2]))
}
