package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSeriesIdentity(t *testing.T) {
	x := []float64{1, 4, 9, 16, 25}

	// Equal rates reproduce the input exactly, sample for sample.
	got := Series(x, 2.0, 2.0, len(x))
	assert.Equal(t, x, got)
}

func TestSeriesInterpolates(t *testing.T) {
	x := []float64{0, 2, 4, 6} // linear ramp at dt=4

	got := Series(x, 4.0, 2.0, 7)
	want := []float64{0, 1, 2, 3, 4, 5, 6}
	require.Len(t, got, 7)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12, "sample %d", i)
	}
}

func TestSeriesClampsPastEnd(t *testing.T) {
	x := []float64{1, 2, 3}

	got := Series(x, 1.0, 1.0, 6)
	assert.Equal(t, []float64{1, 2, 3, 3, 3, 3}, got)
}

func TestSeriesEmptyInput(t *testing.T) {
	got := Series(nil, 1.0, 1.0, 4)
	assert.Equal(t, []float64{0, 0, 0, 0}, got)
}

func TestTraces(t *testing.T) {
	d := mat.NewDense(4, 2, []float64{
		0, 10,
		2, 12,
		4, 14,
		6, 16,
	})

	out := Traces(d, 4.0, 2.0, 7)
	rows, cols := out.Dims()
	require.Equal(t, 7, rows)
	require.Equal(t, 2, cols)
	assert.InDelta(t, 3.0, out.At(3, 0), 1e-12)
	assert.InDelta(t, 13.0, out.At(3, 1), 1e-12)
	assert.InDelta(t, 16.0, out.At(6, 1), 1e-12)
}
