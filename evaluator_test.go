package seisgo

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/shot"
	"github.com/seisgo/seisgo/wave"
)

const (
	testDt = 2.0 // ms, also used as the computational step
	testT  = 240 // ms
	testF0 = 0.015
)

// uniformModel builds a 2-D water-speed model. Axis order is (x, z) with
// depth last.
func uniformModel(t *testing.T, nx, nz int) *model.Model {
	t.Helper()
	m := make([]float64, nx*nz)
	for i := range m {
		m[i] = 1 / (1.5 * 1.5)
	}
	mod, err := model.New([]int{nx, nz}, []float64{10, 10}, []float64{0, 0}, 6, m)
	require.NoError(t, err)
	return mod
}

// twoLayerModel splits the grid at depth point wd between vTop and vBot.
func twoLayerModel(t *testing.T, nx, nz, wd int, vTop, vBot float64) *model.Model {
	t.Helper()
	m := make([]float64, nx*nz)
	for ix := 0; ix < nx; ix++ {
		for iz := 0; iz < nz; iz++ {
			v := vTop
			if iz >= wd {
				v = vBot
			}
			m[ix*nz+iz] = 1 / (v * v)
		}
	}
	mod, err := model.New([]int{nx, nz}, []float64{10, 10}, []float64{0, 0}, 6, m)
	require.NoError(t, err)
	return mod
}

// lineAcquisition builds ns sources with an nr-receiver line near the top of
// an nx-wide grid, with Ricker source records.
func lineAcquisition(t *testing.T, ns, nr, nx int) (*shot.Records, *geometry.Container) {
	t.Helper()
	width := float64(nx-1) * 10

	srcPos := make([]geometry.Points, ns)
	recPos := make([]geometry.Points, ns)
	ts := make([]float64, ns)
	dts := make([]float64, ns)
	for s := 0; s < ns; s++ {
		x := width * (float64(s) + 0.5) / float64(ns)
		srcPos[s] = geometry.Points{{x, 20}}
		line := make(geometry.Points, nr)
		for r := 0; r < nr; r++ {
			line[r] = []float64{width * float64(r) / float64(nr-1), 30}
		}
		recPos[s] = line
		ts[s] = testT
		dts[s] = testDt
	}

	srcGeom, err := geometry.New(srcPos, ts, dts)
	require.NoError(t, err)
	recGeom, err := geometry.New(recPos, ts, dts)
	require.NoError(t, err)

	nt := srcGeom.Nt(0)
	wavelet := wave.Ricker(testF0, testDt, nt)
	traces := make([]*mat.Dense, ns)
	for s := range traces {
		traces[s] = mat.NewDense(nt, 1, append([]float64(nil), wavelet...))
	}
	src, err := shot.New(geometry.NewMaterialized(srcGeom), traces)
	require.NoError(t, err)
	return src, geometry.NewMaterialized(recGeom)
}

func newTestEvaluator(t *testing.T, extra ...Option) *Evaluator {
	t.Helper()
	opts := append([]Option{WithDtComp(testDt), WithSumPadding(true)}, extra...)
	e, err := NewEvaluator(opts...)
	require.NoError(t, err)
	return e
}

func synthesize(t *testing.T, e *Evaluator, m *model.Model, src *shot.Records, rec *geometry.Container) *shot.Records {
	t.Helper()
	obs, err := e.Predict(context.Background(), m, src, rec)
	require.NoError(t, err)
	return obs
}

func TestEvaluateZeroResidual(t *testing.T) {
	modes := []struct {
		name string
		opts []Option
	}{
		{"Standard", nil},
		{"Subsampled", []Option{WithSubsamplingFactor(4)}},
		{"Checkpointed", []Option{WithOptimalCheckpointing(true), WithNumCheckpoints(6)}},
		{"Frequency", []Option{WithSharedFrequencies([]float64{0.010, 0.015})}},
	}
	for _, tc := range modes {
		t.Run(tc.name, func(t *testing.T) {
			m := uniformModel(t, 50, 36)
			src, rec := lineAcquisition(t, 2, 8, 50)
			e := newTestEvaluator(t, tc.opts...)
			obs := synthesize(t, e, m, src, rec)

			misfit, grad, err := e.Evaluate(context.Background(), m, src, obs, nil)
			require.NoError(t, err)
			assert.Zero(t, misfit)
			require.Len(t, grad, m.Size())
			for i, v := range grad {
				require.Zerof(t, v, "gradient cell %d", i)
			}
		})
	}
}

func TestEvaluateDescentDirection(t *testing.T) {
	trueM := twoLayerModel(t, 50, 36, 12, 1.5, 2.0)
	startM := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 2, 8, 50)
	e := newTestEvaluator(t)
	obs := synthesize(t, e, trueM, src, rec)
	ctx := context.Background()

	misfit0, grad, err := e.Evaluate(ctx, startM, src, obs, nil)
	require.NoError(t, err)
	require.Greater(t, misfit0, 0.0)

	maxG := 0.0
	for _, v := range grad {
		if a := math.Abs(v); a > maxG {
			maxG = a
		}
	}
	require.Greater(t, maxG, 0.0)

	// Step 1% of the slowness scale along the negative gradient.
	step := 0.01 / (1.5 * 1.5) / maxG
	x := append([]float64(nil), startM.Slowness()...)
	for i := range x {
		x[i] -= step * grad[i]
	}
	require.NoError(t, startM.SetSlowness(x))

	misfit1, _, err := e.Evaluate(ctx, startM, src, obs, nil)
	require.NoError(t, err)
	assert.Less(t, misfit1, misfit0)
}

// The linearized forward and migration operators are exact transposes once
// the perturbation padding matches the gradient trim convention.
func TestLinearizeMigrateDotProduct(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		tol  float64
	}{
		{"CrossCorrelation", nil, 5e-2},
		{"CrossCorrelationTruncate", []Option{WithSumPadding(false)}, 5e-2},
		{"InverseScattering", []Option{WithImagingCondition(wave.InverseScattering)}, 5e-2},
		{"Subsampled", []Option{WithSubsamplingFactor(4)}, 1e-2},
		{"Checkpointed", []Option{WithOptimalCheckpointing(true), WithNumCheckpoints(9)}, 1e-2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := uniformModel(t, 50, 36)
			src, rec := lineAcquisition(t, 1, 8, 50)
			e := newTestEvaluator(t, tt.opts...)
			obs := synthesize(t, e, m, src, rec)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(13))

			dm := make([]float64, m.Size())
			for i := range dm {
				dm[i] = rng.NormFloat64()
			}

			ddata, err := e.Linearize(ctx, m, src, obs, 0, dm)
			require.NoError(t, err)
			rows, cols := ddata.Dims()
			y := mat.NewDense(rows, cols, nil)
			for n := 0; n < rows; n++ {
				for c := 0; c < cols; c++ {
					y.Set(n, c, rng.NormFloat64())
				}
			}

			g, err := e.Migrate(ctx, m, src, obs, 0, y)
			require.NoError(t, err)
			require.Len(t, g, m.Size())

			var lhs, rhs float64
			for n := 0; n < rows; n++ {
				for c := 0; c < cols; c++ {
					lhs += ddata.At(n, c) * y.At(n, c)
				}
			}
			for i := range dm {
				rhs += dm[i] * g[i]
			}
			require.NotZero(t, rhs)
			assert.InEpsilon(t, rhs, lhs, tt.tol)
		})
	}
}

func TestLinearizeZeroPerturbation(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 1, 8, 50)
	e := newTestEvaluator(t)
	obs := synthesize(t, e, m, src, rec)

	ddata, err := e.Linearize(context.Background(), m, src, obs, 0, make([]float64, m.Size()))
	require.NoError(t, err)
	rows, cols := ddata.Dims()
	for n := 0; n < rows; n++ {
		for c := 0; c < cols; c++ {
			require.Zero(t, ddata.At(n, c))
		}
	}
}

func TestEvaluateNonFiniteData(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 1, 8, 50)
	e := newTestEvaluator(t)
	obs := synthesize(t, e, m, src, rec)

	obs.Trace(0).Set(3, 2, math.NaN())
	_, _, err := e.Evaluate(context.Background(), m, src, obs, nil)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestEvaluateModelBusy(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 1, 8, 50)
	e := newTestEvaluator(t)
	obs := synthesize(t, e, m, src, rec)

	release, err := m.Acquire()
	require.NoError(t, err)
	defer release()

	_, _, err = e.Evaluate(context.Background(), m, src, obs, nil)
	assert.ErrorIs(t, err, model.ErrBusy)
}

func TestEvaluateFrequencyListMismatch(t *testing.T) {
	m := uniformModel(t, 50, 36)
	src, rec := lineAcquisition(t, 2, 8, 50)
	e := newTestEvaluator(t, WithFrequencies([][]float64{{0.015}})) // 1 list, 2 sources
	obs := synthesize(t, e, m, src, rec)

	_, _, err := e.Evaluate(context.Background(), m, src, obs, nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Frequencies", cfgErr.Field)
}

func TestNewEvaluatorRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"BadOrder", []Option{WithSpaceOrder(6)}},
		{"CheckpointingPlusSubsampling", []Option{WithOptimalCheckpointing(true), WithSubsamplingFactor(2)}},
		{"CheckpointingPlusFrequencies", []Option{WithOptimalCheckpointing(true), WithSharedFrequencies([]float64{0.01})}},
		{"FrequenciesPlusSubsampling", []Option{WithSharedFrequencies([]float64{0.01}), WithSubsamplingFactor(2)}},
		{"DFTWithoutFrequencies", []Option{WithDFTSubsamplingFactor(4)}},
		{"NegativeFrequency", []Option{WithSharedFrequencies([]float64{-0.01})}},
		{"NegativeF0", []Option{WithF0(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.opts...)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestModeSelection(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want Mode
	}{
		{"Standard", nil, Standard},
		{"Checkpointed", []Option{WithOptimalCheckpointing(true)}, Checkpointed},
		{"Frequency", []Option{WithSharedFrequencies([]float64{0.01})}, Frequency},
		{"Restricted", []Option{WithLimitModelToReceiverArea(100)}, Restricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEvaluator(tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Mode())
		})
	}
}
