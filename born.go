package seisgo

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/internal/resample"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/shot"
	"github.com/seisgo/seisgo/wave"
)

// Linearize applies the linearized (Born) forward operator for one source: a
// model perturbation dm over the physical grid is mapped to the data
// perturbation it would produce, sampled at the computational timestep. The
// perturbation is padded with the convention matching the gradient trim, so
// Linearize and Migrate stay exact transposes of each other.
func (e *Evaluator) Linearize(ctx context.Context, m *model.Model, src, obs *shot.Records, sourceIndex int, dm []float64) (*mat.Dense, error) {
	release, err := m.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	srcGeom, err := src.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	obsGeom, err := obs.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	dt, err := e.timestep(m)
	if err != nil {
		return nil, err
	}
	p, pads := e.engineParams(m, dt)
	dmPad := e.padPerturbation(m, dm, pads)

	srcSpec, recSpec := e.shotSpecs(srcGeom, obsGeom, src, sourceIndex, dt)

	sub := e.opts.subsampling
	if sub < 1 {
		sub = 1
	}
	ddata, err := e.opts.engine.Born(ctx, p, srcSpec, recSpec, dmPad, sub)
	if err != nil {
		return nil, &EngineError{Op: "born", Shot: sourceIndex, cause: err}
	}
	return ddata, nil
}

// Migrate applies the transpose of Linearize: reverse-time migration of the
// data y (computational time sampling) into a model-space image over the
// physical grid, without dt scaling.
func (e *Evaluator) Migrate(ctx context.Context, m *model.Model, src, obs *shot.Records, sourceIndex int, y *mat.Dense) ([]float64, error) {
	release, err := m.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	srcGeom, err := src.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	obsGeom, err := obs.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	dt, err := e.timestep(m)
	if err != nil {
		return nil, err
	}
	p, pads := e.engineParams(m, dt)
	srcSpec, recSpec := e.shotSpecs(srcGeom, obsGeom, src, sourceIndex, dt)
	eng := e.opts.engine

	var gradPad []float64
	switch e.mode {
	case Checkpointed:
		_, gradPad, err = eng.ForwardAdjoint(ctx, p, srcSpec, recSpec, y, true,
			e.opts.numCheckpoints, e.opts.checkpointMemory)
		if err != nil {
			return nil, &EngineError{Op: "forward-adjoint", Shot: sourceIndex, cause: err}
		}

	case Frequency:
		freqs := e.opts.sharedFreqs
		if len(e.opts.frequencies) > 0 {
			freqs = e.opts.frequencies[sourceIndex]
		}
		dftSub := e.opts.dftSub
		if dftSub < 1 {
			dftSub = 1
		}
		_, fwf, err := eng.ForwardFreq(ctx, p, srcSpec, recSpec, freqs, dftSub)
		if err != nil {
			return nil, &EngineError{Op: "forward-frequency", Shot: sourceIndex, cause: err}
		}
		gradPad, err = eng.AdjointFreq(ctx, p, recSpec, y, fwf)
		if err != nil {
			return nil, &EngineError{Op: "adjoint-frequency", Shot: sourceIndex, cause: err}
		}

	default:
		sub := e.opts.subsampling
		if sub < 1 {
			sub = 1
		}
		_, wf, err := eng.Forward(ctx, p, srcSpec, recSpec, true, sub)
		if err != nil {
			return nil, &EngineError{Op: "forward", Shot: sourceIndex, cause: err}
		}
		gradPad, err = eng.Adjoint(ctx, p, recSpec, y, wf, sub)
		if err != nil {
			return nil, &EngineError{Op: "adjoint", Shot: sourceIndex, cause: err}
		}
	}

	grad := wave.Trim(gradPad, reverseInts(m.Shape()), pads, e.opts.sumPadding)
	if err := checkFinite(0, grad); err != nil {
		return nil, err
	}
	return grad, nil
}

// padPerturbation extends dm onto the padded grid with the convention that
// is the exact transpose of the gradient trim: replicate for sum-trim, zero
// for truncation.
func (e *Evaluator) padPerturbation(m *model.Model, dm []float64, pads wave.PadWidths) []float64 {
	eShape := reverseInts(m.Shape())
	if e.opts.sumPadding {
		return wave.Pad(dm, eShape, pads)
	}
	return wave.PadZero(dm, eShape, pads)
}

// shotSpecs builds the engine source and receiver specs for one shot,
// resampling the wavelet onto the computational timestep.
func (e *Evaluator) shotSpecs(srcGeom, obsGeom *geometry.Geometry, src *shot.Records, ai int, dt float64) (wave.SourceSpec, wave.ReceiverSpec) {
	return e.sourceSpec(srcGeom, src, ai, dt), receiverSpec(obsGeom, ai)
}

func (e *Evaluator) sourceSpec(srcGeom *geometry.Geometry, src *shot.Records, ai int, dt float64) wave.SourceSpec {
	ntComp := int(srcGeom.T(ai)/dt) + 1
	return wave.SourceSpec{
		Coords:  reversePoints(srcGeom.Positions(ai)),
		Wavelet: resample.Series(mat.Col(nil, 0, src.Trace(ai)), srcGeom.Dt(ai), dt, ntComp),
	}
}

func receiverSpec(g *geometry.Geometry, ai int) wave.ReceiverSpec {
	return wave.ReceiverSpec{Coords: reversePoints(g.Positions(ai))}
}
