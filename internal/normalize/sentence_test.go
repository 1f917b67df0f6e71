package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple",
			in:   "Acme builds excavators. It sells them worldwide.",
			want: []string{"Acme builds excavators.", "It sells them worldwide."},
		},
		{
			name: "abbreviation not a boundary",
			in:   "Acme Inc. was founded in 1990. It is based in Ohio.",
			want: []string{"Acme Inc. was founded in 1990.", "It is based in Ohio."},
		},
		{
			name: "decimal not a boundary",
			in:   "Revenue grew 4.5 percent last year. Margins held steady.",
			want: []string{"Revenue grew 4.5 percent last year.", "Margins held steady."},
		},
		{
			name: "question and exclamation",
			in:   "Why choose Acme? Because quality matters!",
			want: []string{"Why choose Acme?", "Because quality matters!"},
		},
		{
			name: "no terminal punctuation",
			in:   "Acme builds excavators",
			want: []string{"Acme builds excavators"},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}

func TestSplitSentences_LowercaseContinuation(t *testing.T) {
	// A period followed by a lowercase word is not a sentence boundary.
	got := SplitSentences("Visit acme.com for details. More information is available.")
	require.Len(t, got, 2)
	assert.Equal(t, "Visit acme.com for details.", got[0])
}
