// Package shot ties acquisition geometry to recorded trace data: one trace
// matrix per source, rows indexed by time sample and columns by receiver.
package shot

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
)

// Records is the multi-source data container. Subsetting produces a new
// Records referencing the same trace matrices; no sample data is copied.
type Records struct {
	geom   *geometry.Container
	traces []*mat.Dense
}

// New builds a data container. If the geometry is already materialized the
// per-source trace shapes are validated immediately; for a deferred geometry
// validation happens on Materialize.
func New(geom *geometry.Container, traces []*mat.Dense) (*Records, error) {
	if geom == nil {
		return nil, fmt.Errorf("shot: nil geometry")
	}
	if len(traces) == 0 {
		return nil, fmt.Errorf("shot: no traces")
	}
	r := &Records{geom: geom, traces: traces}
	if geom.Materialized() {
		if _, err := r.Materialize(context.Background()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NumSources returns the number of sources.
func (r *Records) NumSources() int { return len(r.traces) }

// Trace returns the trace matrix of source i (time samples × receivers).
func (r *Records) Trace(i int) *mat.Dense { return r.traces[i] }

// Geometry returns the geometry container.
func (r *Records) Geometry() *geometry.Container { return r.geom }

// Materialize fetches the geometry if deferred and validates that the trace
// shapes agree with it. Idempotent.
func (r *Records) Materialize(ctx context.Context) (*geometry.Geometry, error) {
	g, err := r.geom.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	if g.NumSources() != len(r.traces) {
		return nil, fmt.Errorf("shot: geometry has %d sources, container has %d trace matrices",
			g.NumSources(), len(r.traces))
	}
	for i, tr := range r.traces {
		rows, cols := tr.Dims()
		if cols != len(g.Positions(i)) {
			return nil, fmt.Errorf("shot: source %d has %d trace columns but %d positions",
				i, cols, len(g.Positions(i)))
		}
		if rows != g.Nt(i) {
			return nil, fmt.Errorf("shot: source %d has %d samples but geometry says %d",
				i, rows, g.Nt(i))
		}
	}
	return g, nil
}

// Subset returns a container restricted to the given source indices. Trace
// matrices are shared with the parent; only the index mapping is new.
// Subsetting materializes the geometry.
func (r *Records) Subset(ctx context.Context, indices []int) (*Records, error) {
	g, err := r.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := g.Subset(indices)
	if err != nil {
		return nil, err
	}
	traces := make([]*mat.Dense, len(indices))
	for k, i := range indices {
		traces[k] = r.traces[i]
	}
	return &Records{geom: geometry.NewMaterialized(sub), traces: traces}, nil
}
