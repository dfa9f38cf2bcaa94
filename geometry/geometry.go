// Package geometry describes acquisition geometry: per-source source and
// receiver positions with their time sampling. A geometry is either
// materialized (coordinates in memory) or deferred (a handle to an
// out-of-core store that is fetched once, on first numeric use).
package geometry

import (
	"fmt"
	"math"
)

// Points is a set of spatial positions in meters, one inner slice per point.
// All points of a geometry share the same number of axes (2 or 3), ordered
// like the model axes.
type Points [][]float64

// Geometry holds, per source, the positions recorded at that source together
// with the record length t (ms) and sample interval dt (ms).
type Geometry struct {
	positions []Points
	t         []float64
	dt        []float64
}

// New validates and builds a materialized geometry. positions, t and dt must
// have one entry per source.
func New(positions []Points, t, dt []float64) (*Geometry, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("geometry: no sources")
	}
	if len(t) != len(positions) || len(dt) != len(positions) {
		return nil, fmt.Errorf("geometry: %d sources but %d record lengths and %d sample intervals",
			len(positions), len(t), len(dt))
	}
	dim := 0
	for s, pts := range positions {
		if len(pts) == 0 {
			return nil, fmt.Errorf("geometry: source %d has no positions", s)
		}
		for p, pt := range pts {
			if dim == 0 {
				dim = len(pt)
				if dim != 2 && dim != 3 {
					return nil, fmt.Errorf("geometry: positions must have 2 or 3 axes, got %d", dim)
				}
			}
			if len(pt) != dim {
				return nil, fmt.Errorf("geometry: source %d position %d has %d axes, expected %d", s, p, len(pt), dim)
			}
		}
		if t[s] <= 0 || dt[s] <= 0 {
			return nil, fmt.Errorf("geometry: source %d has non-positive t=%g or dt=%g", s, t[s], dt[s])
		}
	}
	return &Geometry{positions: positions, t: t, dt: dt}, nil
}

// NumSources returns the number of sources.
func (g *Geometry) NumSources() int { return len(g.positions) }

// Dim returns the number of spatial axes.
func (g *Geometry) Dim() int { return len(g.positions[0][0]) }

// Positions returns the positions recorded at source i. The slice aliases
// the geometry's storage and must not be mutated.
func (g *Geometry) Positions(i int) Points { return g.positions[i] }

// T returns the record length of source i in milliseconds.
func (g *Geometry) T(i int) float64 { return g.t[i] }

// Dt returns the sample interval of source i in milliseconds.
func (g *Geometry) Dt(i int) float64 { return g.dt[i] }

// Nt returns the number of time samples of source i. The sample count is
// rounded, not truncated, so ratios like 0.3/0.1 that land just below an
// integer in floating point do not lose a sample.
func (g *Geometry) Nt(i int) int { return int(math.Round(g.t[i]/g.dt[i])) + 1 }

// Subset returns a geometry restricted to the given source indices. The
// underlying coordinate storage is shared, only the index mapping changes.
func (g *Geometry) Subset(indices []int) (*Geometry, error) {
	out := &Geometry{
		positions: make([]Points, len(indices)),
		t:         make([]float64, len(indices)),
		dt:        make([]float64, len(indices)),
	}
	for k, i := range indices {
		if i < 0 || i >= len(g.positions) {
			return nil, fmt.Errorf("geometry: source index %d out of range [0,%d)", i, len(g.positions))
		}
		out.positions[k] = g.positions[i]
		out.t[k] = g.t[i]
		out.dt[k] = g.dt[i]
	}
	return out, nil
}

// Bounds returns per-axis min and max over every position of every source.
func (g *Geometry) Bounds() (lo, hi []float64) {
	dim := g.Dim()
	lo = make([]float64, dim)
	hi = make([]float64, dim)
	first := true
	for _, pts := range g.positions {
		for _, pt := range pts {
			for a := 0; a < dim; a++ {
				if first || pt[a] < lo[a] {
					lo[a] = pt[a]
				}
				if first || pt[a] > hi[a] {
					hi[a] = pt[a]
				}
			}
			first = false
		}
	}
	return lo, hi
}
