// Package optim implements the bound-constrained stochastic optimizer that
// drives full-waveform inversion: a limited-memory spectral-projected-gradient
// loop with uniform source-batch sampling, non-monotone line search and box
// projection.
package optim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Objective evaluates the misfit and gradient at x over the given source
// batch. The gradient must have the same length as x.
type Objective func(ctx context.Context, x []float64, batch []int) (float64, []float64, error)

// Status reports how an SPG run ended.
type Status int

const (
	// MaxIterations means the iteration cap was reached.
	MaxIterations Status = iota
	// GradientTolerance means the projected-gradient norm fell below OptTol.
	GradientTolerance
	// StepTolerance means the line search could not make further progress.
	StepTolerance
	// Failed means an evaluation returned an error; Result.Trace holds the
	// completed iterations.
	Failed
)

func (s Status) String() string {
	switch s {
	case MaxIterations:
		return "max iterations"
	case GradientTolerance:
		return "gradient tolerance"
	case StepTolerance:
		return "step tolerance"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures an SPG run.
type Options struct {
	// MaxIter caps the number of iterations. Default 10.
	MaxIter int
	// Memory is the history depth of the non-monotone line search.
	// Default 5.
	Memory int
	// NumSources is the total number of sources batches are drawn from.
	NumSources int
	// BatchSize is the number of sources per iteration. Zero or anything
	// at least NumSources uses every source each iteration.
	BatchSize int
	// GradScale, when positive, rescales each gradient by
	// GradScale/max|g| before the step, stabilizing the step length
	// across problem scalings. Zero disables rescaling. The convergence
	// test always uses the raw gradient.
	GradScale float64
	// OptTol stops the run when the projected-gradient infinity norm
	// drops below it. Zero disables the test.
	OptTol float64
	// StepMin and StepMax clamp the spectral step. Defaults 1e-10, 1e10.
	StepMin, StepMax float64
	// MaxLineSearch caps backtracking steps per iteration. Default 10.
	MaxLineSearch int
	// Rand supplies batch sampling randomness. Nil uses the global source.
	Rand *rand.Rand
	// Logf, when non-nil, receives one line per iteration.
	Logf func(format string, args ...any)
}

func (o *Options) defaults() {
	if o.MaxIter <= 0 {
		o.MaxIter = 10
	}
	if o.Memory <= 0 {
		o.Memory = 5
	}
	if o.StepMin <= 0 {
		o.StepMin = 1e-10
	}
	if o.StepMax <= 0 {
		o.StepMax = 1e10
	}
	if o.MaxLineSearch <= 0 {
		o.MaxLineSearch = 10
	}
}

// Result is the outcome of an SPG run.
type Result struct {
	// X is the final estimate, feasible with respect to the bounds.
	X []float64
	// Trace holds the accepted objective value of each completed
	// iteration, in order.
	Trace []float64
	// Evals counts objective evaluations, including line-search trials.
	Evals int
	// Iters counts completed iterations.
	Iters int
	// Status reports why the run stopped.
	Status Status
}

// Project clamps x into [lower, upper] component-wise, as the element-wise
// median of the three vectors. Projecting a feasible point is a no-op.
func Project(dst, x, lower, upper []float64) {
	for i := range x {
		dst[i] = math.Min(math.Max(x[i], lower[i]), upper[i])
	}
}

// SPG minimizes the objective over the box [lower, upper] starting from x0.
// Each iteration draws a fresh uniform batch of sources, takes a spectral
// (Barzilai-Borwein) step along the rescaled negative gradient, projects
// onto the box and accepts via a non-monotone Armijo test against the worst
// objective value of the last Memory iterations.
//
// An evaluation error is terminal: the run stops with Status Failed, the
// partial trace and the last accepted estimate.
func SPG(ctx context.Context, x0, lower, upper []float64, fn Objective, opts Options) (*Result, error) {
	n := len(x0)
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("optim: bounds have %d/%d elements, estimate has %d", len(lower), len(upper), n)
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("optim: lower bound exceeds upper bound at element %d", i)
		}
	}
	if opts.NumSources <= 0 {
		return nil, fmt.Errorf("optim: NumSources must be positive")
	}
	opts.defaults()

	res := &Result{X: make([]float64, n)}
	Project(res.X, x0, lower, upper)

	x := res.X
	xNew := make([]float64, n)
	gPrev := make([]float64, n)
	dx := make([]float64, n)
	dg := make([]float64, n)

	// fWindow holds the last Memory accepted objective values for the
	// non-monotone acceptance test.
	fWindow := make([]float64, 0, opts.Memory)

	const suffDec = 1e-4
	alpha := 1.0

	for iter := 0; iter < opts.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			res.Status = Failed
			return res, err
		}
		batch := sampleBatch(opts.Rand, opts.NumSources, opts.BatchSize)

		f, g, err := fn(ctx, x, batch)
		res.Evals++
		if err != nil {
			res.Status = Failed
			return res, err
		}
		// Projected gradient for the convergence test, before any
		// rescaling.
		pgNorm := 0.0
		for i := range x {
			pg := x[i] - math.Min(math.Max(x[i]-g[i], lower[i]), upper[i])
			if a := math.Abs(pg); a > pgNorm {
				pgNorm = a
			}
		}
		if opts.GradScale > 0 {
			rescale(g, opts.GradScale)
		}
		if opts.OptTol > 0 && pgNorm < opts.OptTol {
			res.Trace = append(res.Trace, f)
			res.Iters = iter + 1
			res.Status = GradientTolerance
			return res, nil
		}

		// Spectral step from the previous accepted pair.
		if iter > 0 {
			floats.SubTo(dg, g, gPrev)
			sy := floats.Dot(dx, dg)
			ss := floats.Dot(dx, dx)
			if sy > 0 {
				alpha = ss / sy
			} else {
				alpha = 1
			}
			alpha = math.Min(math.Max(alpha, opts.StepMin), opts.StepMax)
		}

		// Non-monotone Armijo backtracking against the worst value of
		// the recent window. Extra trials reuse the same batch and
		// count as evaluations.
		fRef := f
		for _, v := range fWindow {
			if v > fRef {
				fRef = v
			}
		}

		t := alpha
		var fNew float64
		accepted := false
		for ls := 0; ls < opts.MaxLineSearch; ls++ {
			for i := range x {
				xNew[i] = x[i] - t*g[i]
			}
			Project(xNew, xNew, lower, upper)

			gtd := 0.0
			for i := range x {
				gtd += g[i] * (xNew[i] - x[i])
			}
			fNew, _, err = fn(ctx, xNew, batch)
			res.Evals++
			if err != nil {
				res.Status = Failed
				return res, err
			}
			if fNew <= fRef+suffDec*gtd {
				accepted = true
				break
			}
			t /= 2
		}
		if !accepted {
			res.Trace = append(res.Trace, f)
			res.Iters = iter + 1
			res.Status = StepTolerance
			return res, nil
		}

		floats.SubTo(dx, xNew, x)
		copy(gPrev, g)
		copy(x, xNew)

		res.Trace = append(res.Trace, fNew)
		res.Iters = iter + 1
		if len(fWindow) == opts.Memory {
			fWindow = fWindow[1:]
		}
		fWindow = append(fWindow, fNew)

		if opts.Logf != nil {
			opts.Logf("iter=%d misfit=%.6e pg=%.3e step=%.3e evals=%d",
				iter+1, fNew, pgNorm, t, res.Evals)
		}
	}
	res.Status = MaxIterations
	return res, nil
}

// rescale normalizes g to scale/max|g| in place. A zero gradient is left
// untouched.
func rescale(g []float64, scale float64) {
	maxAbs := 0.0
	for _, v := range g {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return
	}
	floats.Scale(scale/maxAbs, g)
}

// sampleBatch draws batchSize distinct source indices uniformly, as the
// prefix of a random permutation. Batches across calls are independent.
func sampleBatch(rng *rand.Rand, numSources, batchSize int) []int {
	if batchSize <= 0 || batchSize >= numSources {
		all := make([]int, numSources)
		for i := range all {
			all[i] = i
		}
		return all
	}
	var perm []int
	if rng != nil {
		perm = rng.Perm(numSources)
	} else {
		perm = rand.Perm(numSources)
	}
	return perm[:batchSize]
}
