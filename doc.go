// Package seisgo evaluates full-waveform-inversion objectives: the
// least-squares misfit between observed and simulated seismic data and its
// adjoint-state gradient with respect to squared slowness, for use inside a
// bound-constrained stochastic optimizer.
//
// The evaluator dispatches over four modeling strategies, chosen once from
// the options and validated at construction:
//
//   - Standard adjoint-state, with optional time subsampling of the retained
//     forward wavefield (WithSubsamplingFactor)
//   - Optimal checkpointing, storing compressed snapshots and replaying
//     segments during the adjoint pass (WithOptimalCheckpointing)
//   - Frequency-domain gradients from on-the-fly DFT wavefields
//     (WithFrequencies, WithSharedFrequencies)
//   - Domain restriction for large 3-D problems, cropping the model to the
//     acquisition footprint and zero-extending the gradient
//     (WithLimitModelToReceiverArea)
//
// # Quick start
//
//	ctx := context.Background()
//	eval, err := seisgo.NewEvaluator(
//	    seisgo.WithSpaceOrder(8),
//	    seisgo.WithSumPadding(true),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	misfit, grad, err := eval.Evaluate(ctx, m, sources, observed, nil)
//
// The gradient covers the physical grid, flat in the model's axis order, and
// feeds directly into the optim package:
//
//	result, err := optim.SPG(ctx, x0, lower, upper, objective, optim.Options{
//	    MaxIter:    10,
//	    BatchSize:  8,
//	    NumSources: observed.NumSources(),
//	})
//
// Units follow seismic convention throughout: meters for space, milliseconds
// for time, km/s for velocity, kHz for frequency and s²/km² for squared
// slowness.
package seisgo
