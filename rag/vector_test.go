package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVector(t *testing.T) {
	normalized := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, normalized[0], 1e-6)
	assert.InDelta(t, 0.8, normalized[1], 1e-6)

	var length float64
	for _, v := range normalized {
		length += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(length), 1e-6)
}

func TestNormalizeVector_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestNormalizeVector_AlreadyUnit(t *testing.T) {
	unit := []float32{1, 0, 0}
	assert.Equal(t, unit, NormalizeVector(unit))
}
