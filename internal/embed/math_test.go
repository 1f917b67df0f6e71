package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"mismatched length", []float32{1, 2}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float32{{1, 2}, {3, 4}})
	assert.Equal(t, []float32{2, 3}, got)

	assert.Nil(t, Centroid(nil))
}

func TestContentHash_ModelChangesKey(t *testing.T) {
	a := ContentHash("model-a", "some text")
	b := ContentHash("model-b", "some text")
	c := ContentHash("model-a", "some text")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestVecBytesRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.14159, 0}
	assert.Equal(t, vec, bytesToVec(vecToBytes(vec)))
}
