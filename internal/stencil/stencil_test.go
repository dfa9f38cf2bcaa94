package stencil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights(t *testing.T) {
	for _, order := range Orders() {
		w, err := Weights(order)
		require.NoError(t, err)
		require.Len(t, w, order+1)

		// Second-derivative weights of any consistent stencil sum to zero
		// and are symmetric about the center.
		var sum float64
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-12, "order %d", order)
		for i := range w {
			assert.Equal(t, w[i], w[len(w)-1-i], "order %d", order)
		}
	}

	_, err := Weights(3)
	assert.Error(t, err)
	_, err = Weights(6)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(2))
	assert.True(t, Supported(4))
	assert.True(t, Supported(8))
	assert.False(t, Supported(3))
	assert.False(t, Supported(6))
	assert.False(t, Supported(0))
}

func TestSumAbsConservative(t *testing.T) {
	// The CFL bound always uses at least the 8th-order weights.
	assert.Equal(t, SumAbs(8), SumAbs(2))
	assert.Equal(t, SumAbs(8), SumAbs(4))
	assert.Greater(t, SumAbs(8), 4.0)
}
