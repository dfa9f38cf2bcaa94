// Package model describes the subsurface parameterization used by the
// objective evaluator: a regular grid with an absorbing boundary width and a
// squared-slowness field.
//
// Units follow seismic convention: grid spacing and origin in meters, time in
// milliseconds, velocity in km/s and squared slowness in s²/km² (which is
// identical to ms²/m², so the wave equation needs no unit conversion).
package model

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/seisgo/seisgo/internal/stencil"
)

// ErrBusy is returned by Acquire when an evaluation already holds the model.
var ErrBusy = errors.New("model: already checked out by another evaluation")

// Model is an immutable grid descriptor with a mutable squared-slowness
// field. The field is exclusively owned by the caller; an evaluation checks
// the model out for its duration via Acquire.
type Model struct {
	n  []int
	d  []float64
	o  []float64
	nb int

	m   []float64 // squared slowness, s²/km², len == Size()
	rho []float64 // optional density

	inUse atomic.Bool
}

// Option configures optional model fields at construction.
type Option func(*Model) error

// WithDensity attaches a density field. Its length must match the grid size.
// The field is carried as model metadata and follows crops; the reference
// engine models a constant-density medium and does not read it, but custom
// Engine implementations can.
func WithDensity(rho []float64) Option {
	return func(m *Model) error {
		if len(rho) != m.Size() {
			return fmt.Errorf("model: density has %d samples, grid has %d cells", len(rho), m.Size())
		}
		m.rho = rho
		return nil
	}
}

// New validates and builds a model. shape must have 2 or 3 axes, spacing and
// origin must match it, and the squared-slowness field must have exactly
// prod(shape) strictly positive samples.
func New(shape []int, spacing, origin []float64, nb int, m []float64, opts ...Option) (*Model, error) {
	if len(shape) != 2 && len(shape) != 3 {
		return nil, fmt.Errorf("model: shape must have 2 or 3 axes, got %d", len(shape))
	}
	if len(spacing) != len(shape) || len(origin) != len(shape) {
		return nil, fmt.Errorf("model: spacing/origin axes (%d/%d) do not match shape axes (%d)",
			len(spacing), len(origin), len(shape))
	}
	size := 1
	for i, n := range shape {
		if n < 2 {
			return nil, fmt.Errorf("model: axis %d has %d points, need at least 2", i, n)
		}
		if spacing[i] <= 0 {
			return nil, fmt.Errorf("model: axis %d has non-positive spacing %g", i, spacing[i])
		}
		size *= n
	}
	if nb < 0 {
		return nil, fmt.Errorf("model: negative absorbing width %d", nb)
	}
	if len(m) != size {
		return nil, fmt.Errorf("model: slowness field has %d samples, grid has %d cells", len(m), size)
	}
	for i, v := range m {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("model: slowness sample %d is %g, must be finite and positive", i, v)
		}
	}

	mod := &Model{
		n:  append([]int(nil), shape...),
		d:  append([]float64(nil), spacing...),
		o:  append([]float64(nil), origin...),
		nb: nb,
		m:  m,
	}
	for _, opt := range opts {
		if err := opt(mod); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// Dim returns the number of spatial axes (2 or 3).
func (m *Model) Dim() int { return len(m.n) }

// Shape returns the grid point count per axis.
func (m *Model) Shape() []int { return append([]int(nil), m.n...) }

// Spacing returns the grid spacing per axis in meters.
func (m *Model) Spacing() []float64 { return append([]float64(nil), m.d...) }

// Origin returns the physical origin per axis in meters.
func (m *Model) Origin() []float64 { return append([]float64(nil), m.o...) }

// Nb returns the absorbing boundary width in grid points.
func (m *Model) Nb() int { return m.nb }

// Size returns the total number of grid cells.
func (m *Model) Size() int {
	size := 1
	for _, n := range m.n {
		size *= n
	}
	return size
}

// Slowness returns the squared-slowness field. The slice aliases the model's
// storage; hold Acquire while reading it during an evaluation.
func (m *Model) Slowness() []float64 { return m.m }

// Density returns the optional density field, or nil.
func (m *Model) Density() []float64 { return m.rho }

// SetSlowness replaces the squared-slowness field in place.
func (m *Model) SetSlowness(v []float64) error {
	if len(v) != m.Size() {
		return fmt.Errorf("model: slowness field has %d samples, grid has %d cells", len(v), m.Size())
	}
	copy(m.m, v)
	return nil
}

// Acquire checks the model out for one evaluation. It fails with ErrBusy if
// another evaluation holds it; the returned release function must be called
// exactly once.
func (m *Model) Acquire() (release func(), err error) {
	if !m.inUse.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { m.inUse.Store(false) }, nil
}

// MaxVelocity returns the maximum propagation velocity in km/s.
func (m *Model) MaxVelocity() float64 {
	minM := math.Inf(1)
	for _, v := range m.m {
		if v < minM {
			minM = v
		}
	}
	return math.Sqrt(1 / minM)
}

// CriticalDt returns the largest stable computational timestep in
// milliseconds for the given spatial order, from the CFL condition
//
//	dt <= 0.9 · sqrt(4 / (dim · Σ|w|)) · min(h) / vmax
//
// where w are the second-derivative stencil weights.
func (m *Model) CriticalDt(spaceOrder int) float64 {
	coeff := 0.9 * math.Sqrt(4/(float64(m.Dim())*stencil.SumAbs(spaceOrder)))
	minH := m.d[0]
	for _, h := range m.d[1:] {
		if h < minH {
			minH = h
		}
	}
	dt := coeff * minH / m.MaxVelocity()
	// Truncate to three significant digits so the step is reproducible
	// across platforms.
	scale := math.Pow(10, math.Floor(math.Log10(dt))-2)
	return math.Floor(dt/scale) * scale
}

// CropBounds is the half-open index box [Lo, Hi) of a cropped subgrid.
type CropBounds struct {
	Lo []int
	Hi []int
}

// Shape returns the point count per axis of the cropped region.
func (b CropBounds) Shape() []int {
	s := make([]int, len(b.Lo))
	for i := range s {
		s[i] = b.Hi[i] - b.Lo[i]
	}
	return s
}

// Crop copies the sub-block given by bounds into a new model. The cropped
// model keeps the spacing and absorbing width and shifts the origin.
func (m *Model) Crop(bounds CropBounds) (*Model, error) {
	dim := m.Dim()
	if len(bounds.Lo) != dim || len(bounds.Hi) != dim {
		return nil, fmt.Errorf("model: crop bounds have %d/%d axes, model has %d", len(bounds.Lo), len(bounds.Hi), dim)
	}
	for a := 0; a < dim; a++ {
		if bounds.Lo[a] < 0 || bounds.Hi[a] > m.n[a] || bounds.Hi[a]-bounds.Lo[a] < 2 {
			return nil, fmt.Errorf("model: crop bounds [%d,%d) invalid for axis %d of %d points",
				bounds.Lo[a], bounds.Hi[a], a, m.n[a])
		}
	}

	shape := bounds.Shape()
	origin := make([]float64, dim)
	for a := 0; a < dim; a++ {
		origin[a] = m.o[a] + float64(bounds.Lo[a])*m.d[a]
	}
	sub := make([]float64, prod(shape))
	copyBlock(sub, m.m, m.n, bounds, true)

	out, err := New(shape, m.Spacing(), origin, m.nb, sub)
	if err != nil {
		return nil, err
	}
	if m.rho != nil {
		subRho := make([]float64, len(sub))
		copyBlock(subRho, m.rho, m.n, bounds, true)
		out.rho = subRho
	}
	return out, nil
}

// Embed writes the block-shaped field src into a zero field of the full grid
// size at the position given by bounds. Cells outside the block are exactly
// zero.
func (m *Model) Embed(bounds CropBounds, src []float64) ([]float64, error) {
	if len(src) != prod(bounds.Shape()) {
		return nil, fmt.Errorf("model: block has %d samples, bounds describe %d cells", len(src), prod(bounds.Shape()))
	}
	dst := make([]float64, m.Size())
	copyBlock(src, dst, m.n, bounds, false)
	return dst, nil
}

func prod(n []int) int {
	p := 1
	for _, v := range n {
		p *= v
	}
	return p
}

// copyBlock moves data between a full grid (row-major over full, last axis
// fastest) and the sub-block described by bounds. extract selects the
// direction: full→block when true, block→full when false.
func copyBlock(block, full []float64, fullShape []int, bounds CropBounds, extract bool) {
	dim := len(fullShape)
	shape := bounds.Shape()

	idx := make([]int, dim)
	for bi := 0; bi < prod(shape); bi++ {
		// Decode block index, last axis fastest.
		rem := bi
		for a := dim - 1; a >= 0; a-- {
			idx[a] = rem%shape[a] + bounds.Lo[a]
			rem /= shape[a]
		}
		fi := 0
		for a := 0; a < dim; a++ {
			fi = fi*fullShape[a] + idx[a]
		}
		if extract {
			block[bi] = full[fi]
		} else {
			full[fi] = block[bi]
		}
	}
}
