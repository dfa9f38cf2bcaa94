package optim

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	lower := []float64{0, 0, -1}
	upper := []float64{1, 2, 1}

	t.Run("Clamps", func(t *testing.T) {
		x := []float64{-5, 1, 7}
		out := make([]float64, 3)
		Project(out, x, lower, upper)
		assert.Equal(t, []float64{0, 1, 1}, out)
	})

	t.Run("Idempotent", func(t *testing.T) {
		x := []float64{0.5, 1.5, 0}
		once := make([]float64, 3)
		twice := make([]float64, 3)
		Project(once, x, lower, upper)
		Project(twice, once, lower, upper)
		assert.Equal(t, x, once)
		assert.Equal(t, once, twice)
	})
}

// quadratic is a separable strictly convex objective with minimum at target.
func quadratic(target []float64) Objective {
	return func(_ context.Context, x []float64, _ []int) (float64, []float64, error) {
		f := 0.0
		g := make([]float64, len(x))
		for i := range x {
			d := x[i] - target[i]
			f += 0.5 * d * d
			g[i] = d
		}
		return f, g, nil
	}
}

func TestSPGQuadratic(t *testing.T) {
	target := []float64{0.3, -0.2, 0.7, 0.1}
	lower := []float64{-1, -1, -1, -1}
	upper := []float64{1, 1, 1, 1}
	x0 := []float64{0.9, 0.9, -0.9, -0.9}

	res, err := SPG(context.Background(), x0, lower, upper, quadratic(target), Options{
		MaxIter:    200,
		NumSources: 4,
		OptTol:     1e-8,
		Rand:       rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trace)

	for i := range target {
		assert.InDelta(t, target[i], res.X[i], 1e-4)
	}
	assert.LessOrEqual(t, res.Trace[len(res.Trace)-1], res.Trace[0])
	assert.Equal(t, GradientTolerance, res.Status)
}

func TestSPGRespectsBounds(t *testing.T) {
	// Unconstrained minimum sits outside the box; the solution must land
	// on the boundary and stay feasible throughout.
	target := []float64{5, -5}
	lower := []float64{-1, -1}
	upper := []float64{1, 1}

	res, err := SPG(context.Background(), []float64{0, 0}, lower, upper, quadratic(target), Options{
		MaxIter:    100,
		NumSources: 2,
		Rand:       rand.New(rand.NewSource(2)),
	})
	require.NoError(t, err)
	for i, v := range res.X {
		assert.GreaterOrEqual(t, v, lower[i])
		assert.LessOrEqual(t, v, upper[i])
	}
	assert.InDelta(t, 1.0, res.X[0], 1e-6)
	assert.InDelta(t, -1.0, res.X[1], 1e-6)
}

func TestSPGPartialTraceOnError(t *testing.T) {
	boom := errors.New("engine blew up")
	calls := 0
	fn := func(ctx context.Context, x []float64, batch []int) (float64, []float64, error) {
		calls++
		if calls > 5 {
			return 0, nil, boom
		}
		return quadratic([]float64{0, 0})(ctx, x, batch)
	}

	res, err := SPG(context.Background(), []float64{0.5, 0.5}, []float64{-1, -1}, []float64{1, 1}, fn, Options{
		MaxIter:    50,
		NumSources: 2,
		Rand:       rand.New(rand.NewSource(3)),
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, Failed, res.Status)
	assert.NotEmpty(t, res.Trace, "completed iterations must be kept")
	assert.Greater(t, res.Evals, 0)
}

func TestSPGBatchSampling(t *testing.T) {
	var seen [][]int
	fn := func(ctx context.Context, x []float64, batch []int) (float64, []float64, error) {
		cp := append([]int(nil), batch...)
		seen = append(seen, cp)
		return quadratic([]float64{0})(ctx, x, nil)
	}

	_, err := SPG(context.Background(), []float64{0.5}, []float64{-1}, []float64{1}, fn, Options{
		MaxIter:    5,
		NumSources: 10,
		BatchSize:  3,
		Rand:       rand.New(rand.NewSource(4)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)

	for _, batch := range seen {
		assert.Len(t, batch, 3)
		uniq := map[int]struct{}{}
		for _, i := range batch {
			assert.GreaterOrEqual(t, i, 0)
			assert.Less(t, i, 10)
			uniq[i] = struct{}{}
		}
		assert.Len(t, uniq, 3, "no replacement within one batch")
	}
}

func TestSPGValidation(t *testing.T) {
	fn := quadratic([]float64{0})
	ctx := context.Background()

	t.Run("BoundLengthMismatch", func(t *testing.T) {
		_, err := SPG(ctx, []float64{0}, []float64{0, 1}, []float64{1}, fn, Options{NumSources: 1})
		assert.Error(t, err)
	})
	t.Run("CrossedBounds", func(t *testing.T) {
		_, err := SPG(ctx, []float64{0}, []float64{2}, []float64{1}, fn, Options{NumSources: 1})
		assert.Error(t, err)
	})
	t.Run("NoSources", func(t *testing.T) {
		_, err := SPG(ctx, []float64{0}, []float64{-1}, []float64{1}, fn, Options{})
		assert.Error(t, err)
	})
}
