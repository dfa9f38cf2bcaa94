package seisgo

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/internal/resample"
	"github.com/seisgo/seisgo/model"
	"github.com/seisgo/seisgo/shot"
	"github.com/seisgo/seisgo/wave"
)

// Evaluator computes the least-squares data misfit and its adjoint-state
// gradient with respect to squared slowness. The modeling strategy is chosen
// once, from the options, and validated at construction.
type Evaluator struct {
	opts options
	mode Mode
}

// NewEvaluator builds an evaluator. Inconsistent option combinations are
// rejected here, before any modeling takes place.
func NewEvaluator(optFns ...Option) (*Evaluator, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Evaluator{opts: o, mode: o.mode()}, nil
}

// Mode reports the modeling strategy derived from the options.
func (e *Evaluator) Mode() Mode { return e.mode }

// Evaluate computes the misfit and gradient over the sources selected by
// indices (nil means all). src holds the source wavelets, obs the observed
// data; both must describe the same sources. The model is checked out for
// the duration of the call. The gradient covers the physical grid, flat in
// the model's own axis order, scaled by the computational timestep.
func (e *Evaluator) Evaluate(ctx context.Context, m *model.Model, src, obs *shot.Records, indices []int) (float64, []float64, error) {
	release, err := m.Acquire()
	if err != nil {
		return 0, nil, err
	}
	defer release()

	if indices == nil {
		indices = make([]int, src.NumSources())
		for i := range indices {
			indices[i] = i
		}
	}

	start := time.Now()
	misfit, grad, err := e.evaluate(ctx, m, src, obs, indices)
	e.opts.metrics.RecordEvaluate(len(indices), misfit, time.Since(start), err)
	e.opts.logger.LogEvaluate(ctx, len(indices), misfit, time.Since(start), err)
	return misfit, grad, err
}

func (e *Evaluator) evaluate(ctx context.Context, m *model.Model, src, obs *shot.Records, indices []int) (float64, []float64, error) {
	srcGeom, err := src.Materialize(ctx)
	if err != nil {
		return 0, nil, err
	}
	obsGeom, err := obs.Materialize(ctx)
	if err != nil {
		return 0, nil, err
	}
	if srcGeom.NumSources() != obsGeom.NumSources() {
		return 0, nil, &ConfigError{
			Field:  "Records",
			Reason: fmt.Sprintf("source container has %d sources, observed has %d", srcGeom.NumSources(), obsGeom.NumSources()),
		}
	}
	for _, i := range indices {
		if i < 0 || i >= srcGeom.NumSources() {
			return 0, nil, &ConfigError{
				Field:  "Indices",
				Reason: fmt.Sprintf("source index %d out of range [0,%d)", i, srcGeom.NumSources()),
			}
		}
	}
	if n := len(e.opts.frequencies); n > 0 && n != srcGeom.NumSources() {
		return 0, nil, &ConfigError{
			Field:  "Frequencies",
			Reason: fmt.Sprintf("%d frequency lists for %d sources", n, srcGeom.NumSources()),
		}
	}

	if e.mode == Restricted {
		return e.evaluateRestricted(ctx, m, srcGeom, obsGeom, src, obs, indices)
	}

	misfit, gradPad, pads, dt, err := e.evalBatch(ctx, m, srcGeom, obsGeom, src, obs, indices)
	if err != nil {
		return 0, nil, err
	}
	grad := e.finishGradient(m, gradPad, pads, dt)
	if err := checkFinite(misfit, grad); err != nil {
		return 0, nil, err
	}
	return misfit, grad, nil
}

// evaluateRestricted crops the model to the acquisition footprint of the
// batch, evaluates on the cropped grid and zero-extends the gradient back
// onto the full grid.
func (e *Evaluator) evaluateRestricted(ctx context.Context, m *model.Model, srcGeom, obsGeom *geometry.Geometry, src, obs *shot.Records, indices []int) (float64, []float64, error) {
	batchSrc, err := srcGeom.Subset(indices)
	if err != nil {
		return 0, nil, err
	}
	batchObs, err := obsGeom.Subset(indices)
	if err != nil {
		return 0, nil, err
	}
	bounds, err := Restrict(m, batchSrc, batchObs, e.opts.bufferSize)
	if err != nil {
		return 0, nil, err
	}
	cropped, err := m.Crop(bounds)
	if err != nil {
		return 0, nil, err
	}

	misfit, gradPad, pads, dt, err := e.evalBatch(ctx, cropped, srcGeom, obsGeom, src, obs, indices)
	if err != nil {
		return 0, nil, err
	}
	gradCrop := e.finishGradient(cropped, gradPad, pads, dt)
	grad, err := Extend(m, bounds, gradCrop)
	if err != nil {
		return 0, nil, err
	}
	if err := checkFinite(misfit, grad); err != nil {
		return 0, nil, err
	}
	return misfit, grad, nil
}

// evalBatch fans the batch out across shots and accumulates misfit and the
// padded-grid gradient. The gradient is returned without the dt scaling.
func (e *Evaluator) evalBatch(ctx context.Context, m *model.Model, srcGeom, obsGeom *geometry.Geometry, src, obs *shot.Records, indices []int) (float64, []float64, wave.PadWidths, float64, error) {
	dt, err := e.timestep(m)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	p, pads := e.engineParams(m, dt)

	var (
		mu     sync.Mutex
		misfit float64
	)
	gradPad := make([]float64, len(p.M))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, ai := range indices {
		ai := ai
		g.Go(func() error {
			start := time.Now()
			phi, gs, err := e.evalShot(gctx, p, srcGeom, obsGeom, src, obs, ai, dt)
			e.opts.metrics.RecordShot(time.Since(start), err)
			e.opts.logger.LogShot(gctx, ai, phi, time.Since(start), err)
			if err != nil {
				return err
			}
			mu.Lock()
			misfit += phi
			floats.Add(gradPad, gs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, nil, 0, err
	}
	return misfit, gradPad, pads, dt, nil
}

// evalShot models one source and returns its misfit contribution and
// padded-grid gradient.
func (e *Evaluator) evalShot(ctx context.Context, p *wave.Params, srcGeom, obsGeom *geometry.Geometry, src, obs *shot.Records, ai int, dt float64) (float64, []float64, error) {
	srcSpec, recSpec := e.shotSpecs(srcGeom, obsGeom, src, ai, dt)
	obsComp := resample.Traces(obs.Trace(ai), obsGeom.Dt(ai), dt, len(srcSpec.Wavelet))
	eng := e.opts.engine

	switch e.mode {
	case Checkpointed:
		phi, grad, err := eng.ForwardAdjoint(ctx, p, srcSpec, recSpec, obsComp, false,
			e.opts.numCheckpoints, e.opts.checkpointMemory)
		if err != nil {
			return 0, nil, &EngineError{Op: "forward-adjoint", Shot: ai, cause: err}
		}
		return phi, grad, nil

	case Frequency:
		freqs := e.opts.sharedFreqs
		if len(e.opts.frequencies) > 0 {
			freqs = e.opts.frequencies[ai]
		}
		dftSub := e.opts.dftSub
		if dftSub < 1 {
			dftSub = 1
		}
		pred, fwf, err := eng.ForwardFreq(ctx, p, srcSpec, recSpec, freqs, dftSub)
		if err != nil {
			return 0, nil, &EngineError{Op: "forward-frequency", Shot: ai, cause: err}
		}
		residual := residualOf(pred, obsComp)
		grad, err := eng.AdjointFreq(ctx, p, recSpec, residual, fwf)
		if err != nil {
			return 0, nil, &EngineError{Op: "adjoint-frequency", Shot: ai, cause: err}
		}
		return halfNormSq(residual) * p.Dt, grad, nil

	default: // Standard and Restricted share the plain adjoint-state path.
		sub := e.opts.subsampling
		if sub < 1 {
			sub = 1
		}
		pred, wf, err := eng.Forward(ctx, p, srcSpec, recSpec, true, sub)
		if err != nil {
			return 0, nil, &EngineError{Op: "forward", Shot: ai, cause: err}
		}
		residual := residualOf(pred, obsComp)
		grad, err := eng.Adjoint(ctx, p, recSpec, residual, wf, sub)
		if err != nil {
			return 0, nil, &EngineError{Op: "adjoint", Shot: ai, cause: err}
		}
		return halfNormSq(residual) * p.Dt, grad, nil
	}
}

// timestep picks the computational timestep: the CFL-critical step, or the
// configured override when it is stable.
func (e *Evaluator) timestep(m *model.Model) (float64, error) {
	crit := m.CriticalDt(e.opts.spaceOrder)
	if e.opts.dtComp == 0 {
		return crit, nil
	}
	if e.opts.dtComp > crit {
		return 0, &ConfigError{
			Field:  "DtComp",
			Reason: fmt.Sprintf("timestep %g ms exceeds the critical step %g ms", e.opts.dtComp, crit),
		}
	}
	return e.opts.dtComp, nil
}

// engineParams builds the padded-grid parameters in engine axis order. The
// model's flat layout is last-axis-fastest, which reads as first-axis-fastest
// once the axes are reversed, so the field bytes cross the boundary as-is.
func (e *Evaluator) engineParams(m *model.Model, dt float64) (*wave.Params, wave.PadWidths) {
	eShape := reverseInts(m.Shape())
	eSpacing := reverseFloats(m.Spacing())
	eOrigin := reverseFloats(m.Origin())

	fsAxis := -1
	if e.opts.freeSurface {
		fsAxis = 0 // depth is the first engine axis
	}
	pads := wave.Pads(m.Dim(), m.Nb(), fsAxis)

	p := &wave.Params{
		Shape:      wave.PaddedShape(eShape, pads),
		Spacing:    eSpacing,
		Origin:     wave.PaddedOrigin(eOrigin, eSpacing, pads),
		M:          wave.Pad(m.Slowness(), eShape, pads),
		Dt:         dt,
		SpaceOrder: e.opts.spaceOrder,
		Imaging:    e.opts.imaging,
		OnReplay:   e.opts.metrics.RecordCheckpointReplay,
	}
	p.Damp = wave.Damping(p.Shape, pads, eSpacing)
	return p, pads
}

// finishGradient trims the absorbing layer under the configured padding
// convention and applies the dt scaling of the misfit integral.
func (e *Evaluator) finishGradient(m *model.Model, gradPad []float64, pads wave.PadWidths, dt float64) []float64 {
	grad := wave.Trim(gradPad, reverseInts(m.Shape()), pads, e.opts.sumPadding)
	floats.Scale(dt, grad)
	return grad
}

func residualOf(pred, obs *mat.Dense) *mat.Dense {
	r := &mat.Dense{}
	r.Sub(pred, obs)
	return r
}

func halfNormSq(r *mat.Dense) float64 {
	rows, cols := r.Dims()
	var s float64
	for n := 0; n < rows; n++ {
		for c := 0; c < cols; c++ {
			v := r.At(n, c)
			s += v * v
		}
	}
	return 0.5 * s
}

func checkFinite(misfit float64, grad []float64) error {
	if math.IsNaN(misfit) || math.IsInf(misfit, 0) {
		return fmt.Errorf("%w: misfit is %g", ErrNonFinite, misfit)
	}
	for i, v := range grad {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: gradient cell %d is %g", ErrNonFinite, i, v)
		}
	}
	return nil
}

func reverseInts(v []int) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}

func reverseFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}

func reversePoints(pts geometry.Points) [][]float64 {
	out := make([][]float64, len(pts))
	for i, pt := range pts {
		out[i] = reverseFloats(pt)
	}
	return out
}
