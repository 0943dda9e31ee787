package vectormath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 3.0, Dot([]float32{1, 2, 9}, []float32{3}), 1e-9)
}

func TestMaxSim(t *testing.T) {
	doc := [][]float32{{1, 0}, {0, 1}}
	query := [][]float32{{1, 0}, {0.5, 0.5}, {-1, -1}}
	// 1 + 0.5 + (-1)
	assert.InDelta(t, 0.5, MaxSim(query, doc), 1e-9)
	assert.Equal(t, 0.0, MaxSim(query, nil))
	assert.Equal(t, 0.0, MaxSim(nil, doc))
}

func TestMaxSimRanksCloserDocumentHigher(t *testing.T) {
	query := [][]float32{{1, 0}, {0, 1}}
	near := [][]float32{{0.9, 0.1}, {0.1, 0.9}}
	far := [][]float32{{0.5, 0.5}}
	assert.Greater(t, MaxSim(query, near), MaxSim(query, far))
}
