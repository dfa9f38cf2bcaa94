package seisgo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/shot"
	"github.com/seisgo/seisgo/wave"
)

// cubeModel builds a small uniform 3-D model, axes (x, y, z) with depth
// last.
func cubeModel(t *testing.T, nx, ny, nz int) *model.Model {
	t.Helper()
	m := make([]float64, nx*ny*nz)
	for i := range m {
		m[i] = 1 / (1.5 * 1.5)
	}
	mod, err := model.New([]int{nx, ny, nz}, []float64{10, 10, 10}, []float64{0, 0, 0}, 4, m)
	require.NoError(t, err)
	return mod
}

// centerAcquisition3D puts one source and a small receiver patch near the
// middle of the grid, leaving the outer cells outside the acquisition
// footprint.
func centerAcquisition3D(t *testing.T) (*shot.Records, *geometry.Container) {
	t.Helper()
	const recordT, recordDt = 120, 2.0

	srcPos := []geometry.Points{{{95, 80, 20}}}
	patch := geometry.Points{}
	for _, x := range []float64{75, 95, 115} {
		for _, y := range []float64{60, 80, 100} {
			patch = append(patch, []float64{x, y, 30})
		}
	}
	recPos := []geometry.Points{patch}

	srcGeom, err := geometry.New(srcPos, []float64{recordT}, []float64{recordDt})
	require.NoError(t, err)
	recGeom, err := geometry.New(recPos, []float64{recordT}, []float64{recordDt})
	require.NoError(t, err)

	nt := srcGeom.Nt(0)
	wavelet := wave.Ricker(testF0, recordDt, nt)
	src, err := shot.New(geometry.NewMaterialized(srcGeom),
		[]*mat.Dense{mat.NewDense(nt, 1, wavelet)})
	require.NoError(t, err)
	return src, geometry.NewMaterialized(recGeom)
}

func TestRestrictBounds(t *testing.T) {
	m := cubeModel(t, 24, 20, 16)
	src, rec := centerAcquisition3D(t)

	srcGeom, err := src.Materialize(context.Background())
	require.NoError(t, err)
	recGeom, err := rec.Materialize(context.Background())
	require.NoError(t, err)

	bounds, err := Restrict(m, srcGeom, recGeom, 20)
	require.NoError(t, err)

	shape := m.Shape()
	for a := 0; a < 3; a++ {
		assert.GreaterOrEqual(t, bounds.Lo[a], 0)
		assert.LessOrEqual(t, bounds.Hi[a], shape[a])
		assert.GreaterOrEqual(t, bounds.Hi[a]-bounds.Lo[a], 2)
	}
	// The footprint plus buffer is well inside this grid, so the crop
	// must be a strict sub-box on x and y.
	assert.Greater(t, bounds.Lo[0], 0)
	assert.Less(t, bounds.Hi[0], shape[0])
	assert.Greater(t, bounds.Lo[1], 0)
	assert.Less(t, bounds.Hi[1], shape[1])
}

func TestRestrictRejects2D(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 1, 8, 50)

	srcGeom, err := src.Materialize(context.Background())
	require.NoError(t, err)
	recGeom, err := rec.Materialize(context.Background())
	require.NoError(t, err)

	_, err = Restrict(m, srcGeom, recGeom, 100)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "LimitModelToReceiverArea", cfgErr.Field)
}

func TestEvaluateRestrictedRejects2D(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 1, 8, 50)
	e := newTestEvaluator(t)
	obs := synthesize(t, e, m, src, rec)

	restricted := newTestEvaluator(t, WithLimitModelToReceiverArea(100))
	_, _, err := restricted.Evaluate(context.Background(), m, src, obs, nil)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

// Every gradient cell outside the acquisition bounding box must be exactly
// zero, not merely small.
func TestEvaluateRestrictedExtensionExactness(t *testing.T) {
	m := cubeModel(t, 24, 20, 16)
	src, rec := centerAcquisition3D(t)
	ctx := context.Background()

	plain := newTestEvaluator(t)
	obs := synthesize(t, plain, m, src, rec)

	e := newTestEvaluator(t, WithLimitModelToReceiverArea(20))
	misfit, grad, err := e.Evaluate(ctx, m, src, obs, nil)
	require.NoError(t, err)
	require.Len(t, grad, m.Size())
	require.False(t, math.IsNaN(misfit))

	srcGeom, err := src.Materialize(ctx)
	require.NoError(t, err)
	recGeom, err := rec.Materialize(ctx)
	require.NoError(t, err)
	bounds, err := Restrict(m, srcGeom, recGeom, 20)
	require.NoError(t, err)

	shape := m.Shape()
	var outside int
	var insideNorm float64
	for ix := 0; ix < shape[0]; ix++ {
		for iy := 0; iy < shape[1]; iy++ {
			for iz := 0; iz < shape[2]; iz++ {
				i := (ix*shape[1]+iy)*shape[2] + iz
				in := ix >= bounds.Lo[0] && ix < bounds.Hi[0] &&
					iy >= bounds.Lo[1] && iy < bounds.Hi[1] &&
					iz >= bounds.Lo[2] && iz < bounds.Hi[2]
				if in {
					insideNorm += grad[i] * grad[i]
				} else {
					outside++
					require.Zerof(t, grad[i], "gradient outside crop at (%d,%d,%d)", ix, iy, iz)
				}
			}
		}
	}
	require.Greater(t, outside, 0, "crop must exclude part of the grid")
	assert.Greater(t, insideNorm, 0.0, "gradient inside the crop must be non-trivial")
}
