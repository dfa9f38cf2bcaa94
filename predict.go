package seisgo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/internal/resample"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/shot"
)

// Predict forward-models every source through the current model and returns
// the predicted data on the receiver geometry, resampled back to its record
// sampling. Used to synthesize observed data and for quality control.
func (e *Evaluator) Predict(ctx context.Context, m *model.Model, src *shot.Records, rec *geometry.Container) (*shot.Records, error) {
	release, err := m.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	srcGeom, err := src.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	recGeom, err := rec.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	if srcGeom.NumSources() != recGeom.NumSources() {
		return nil, &ConfigError{
			Field:  "Records",
			Reason: "source and receiver geometries describe different source counts",
		}
	}
	dt, err := e.timestep(m)
	if err != nil {
		return nil, err
	}
	p, _ := e.engineParams(m, dt)

	traces := make([]*mat.Dense, srcGeom.NumSources())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for ai := 0; ai < srcGeom.NumSources(); ai++ {
		ai := ai
		g.Go(func() error {
			srcSpec := e.sourceSpec(srcGeom, src, ai, dt)
			recSpec := receiverSpec(recGeom, ai)
			pred, _, err := e.opts.engine.Forward(gctx, p, srcSpec, recSpec, false, 1)
			if err != nil {
				return &EngineError{Op: "forward", Shot: ai, cause: err}
			}
			// Each shot writes its own slot.
			traces[ai] = resample.Traces(pred, dt, recGeom.Dt(ai), recGeom.Nt(ai))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shot.New(geometry.NewMaterialized(recGeom), traces)
}
