package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry(t *testing.T) *Geometry {
	t.Helper()
	g, err := New(
		[]Points{
			{{0, 10}, {100, 10}},
			{{50, 20}},
			{{-25, 5}, {25, 5}, {75, 5}},
		},
		[]float64{1000, 1000, 500},
		[]float64{4, 4, 2},
	)
	require.NoError(t, err)
	return g
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name      string
		positions []Points
		t         []float64
		dt        []float64
	}{
		{"NoSources", nil, nil, nil},
		{"LengthMismatch", []Points{{{0, 0}}}, []float64{100, 100}, []float64{4}},
		{"EmptySource", []Points{{}}, []float64{100}, []float64{4}},
		{"OneAxis", []Points{{{0}}}, []float64{100}, []float64{4}},
		{"MixedAxes", []Points{{{0, 0}, {0, 0, 0}}}, []float64{100}, []float64{4}},
		{"ZeroDt", []Points{{{0, 0}}}, []float64{100}, []float64{0}},
		{"NegativeT", []Points{{{0, 0}}}, []float64{-1}, []float64{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.positions, tt.t, tt.dt)
			assert.Error(t, err)
		})
	}
}

func TestAccessors(t *testing.T) {
	g := testGeometry(t)

	assert.Equal(t, 3, g.NumSources())
	assert.Equal(t, 2, g.Dim())
	assert.Equal(t, 251, g.Nt(0)) // 1000/4 + 1
	assert.Equal(t, 251, g.Nt(2)) // 500/2 + 1
	assert.Len(t, g.Positions(2), 3)
}

func TestNtInexactRatio(t *testing.T) {
	// 0.3/0.1 is 2.9999... in floating point; truncation would drop a
	// sample.
	g, err := New([]Points{{{0, 0}}}, []float64{0.3}, []float64{0.1})
	require.NoError(t, err)
	assert.Equal(t, 4, g.Nt(0))
}

func TestSubsetSharesStorage(t *testing.T) {
	g := testGeometry(t)

	sub, err := g.Subset([]int{2, 0})
	require.NoError(t, err)

	assert.Equal(t, 2, sub.NumSources())
	assert.Equal(t, g.T(2), sub.T(0))
	assert.Equal(t, g.Dt(0), sub.Dt(1))
	// Same backing arrays, not copies.
	assert.Equal(t, &g.Positions(2)[0][0], &sub.Positions(0)[0][0])

	_, err = g.Subset([]int{3})
	assert.Error(t, err)
}

func TestBounds(t *testing.T) {
	g := testGeometry(t)

	lo, hi := g.Bounds()
	assert.Equal(t, []float64{-25, 5}, lo)
	assert.Equal(t, []float64{100, 20}, hi)
}
