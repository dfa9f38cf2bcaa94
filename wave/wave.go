// Package wave defines the contract with the wave-equation modeling engine
// and provides Acoustic, a reference finite-difference implementation of it.
//
// Engine axis convention: the engine receives shapes, spacings, origins and
// coordinates with the slowest-varying axis last, i.e. reversed relative to
// the model ordering, and flat fields are laid out with the FIRST engine
// axis varying fastest. Under this convention the flat field bytes are
// identical on both sides of the boundary; only shape tuples and coordinates
// are reversed. The reversal is applied by the caller (the evaluator), once.
//
// Units: meters, milliseconds, squared slowness in s²/km² (≡ ms²/m²),
// frequencies in kHz (cycles per millisecond, 0.01 = 10 Hz).
package wave

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/seisgo/seisgo/internal/stencil"
)

// ErrOutOfGrid is returned when a source or receiver position falls outside
// the computational grid.
var ErrOutOfGrid = errors.New("wave: position outside computational grid")

// Imaging selects the cross-correlation convention used when combining
// forward and adjoint wavefields into a gradient.
type Imaging int

const (
	// CrossCorrelation is the default zero-lag cross-correlation condition.
	CrossCorrelation Imaging = iota
	// InverseScattering adds the gradient-correlation term (ISIC), which
	// suppresses low-frequency backscattering artifacts.
	InverseScattering
)

func (ic Imaging) String() string {
	switch ic {
	case CrossCorrelation:
		return "cross-correlation"
	case InverseScattering:
		return "inverse-scattering"
	default:
		return fmt.Sprintf("imaging(%d)", int(ic))
	}
}

// Params bundles the computational grid handed to an engine call: the padded
// squared-slowness field, the absorbing sponge profile and the timestep.
// Fields follow the engine axis convention described in the package comment.
type Params struct {
	Shape   []int     // padded grid points per axis
	Spacing []float64 // m
	Origin  []float64 // m, origin of the padded grid
	M       []float64 // squared slowness on the padded grid, s²/km²
	Damp    []float64 // sponge coefficient per cell, 0 in the interior

	Dt         float64 // computational timestep, ms
	SpaceOrder int     // centered stencil order: 2, 4 or 8
	Imaging    Imaging

	// OnReplay, when set, is called with the number of recomputed timesteps
	// each time a checkpointed adjoint pass replays a segment. Must be safe
	// for concurrent use; engines ignore it outside ForwardAdjoint.
	OnReplay func(steps int)
}

// Validate checks internal consistency of the grid bundle.
func (p *Params) Validate() error {
	if len(p.Shape) != 2 && len(p.Shape) != 3 {
		return fmt.Errorf("wave: grid must have 2 or 3 axes, got %d", len(p.Shape))
	}
	if len(p.Spacing) != len(p.Shape) || len(p.Origin) != len(p.Shape) {
		return fmt.Errorf("wave: spacing/origin axes do not match shape")
	}
	size := 1
	for _, n := range p.Shape {
		size *= n
	}
	if len(p.M) != size {
		return fmt.Errorf("wave: slowness field has %d samples, grid has %d cells", len(p.M), size)
	}
	if len(p.Damp) != size {
		return fmt.Errorf("wave: damping field has %d samples, grid has %d cells", len(p.Damp), size)
	}
	if p.Dt <= 0 {
		return fmt.Errorf("wave: non-positive timestep %g", p.Dt)
	}
	if !stencil.Supported(p.SpaceOrder) {
		return fmt.Errorf("wave: unsupported space order %d", p.SpaceOrder)
	}
	return nil
}

// SourceSpec describes one source: its position(s) and the wavelet sampled
// at the computational timestep. The wavelet length fixes the number of
// simulated timesteps.
type SourceSpec struct {
	Coords  [][]float64
	Wavelet []float64
}

// ReceiverSpec describes the receiver spread of one shot.
type ReceiverSpec struct {
	Coords [][]float64
}

// Wavefield is the retained forward wavefield of a save-mode forward run.
// Slices[j] is the field at timestep j·Sub.
type Wavefield struct {
	Slices [][]float64
	Sub    int
	Nt     int
}

// FreqWavefield holds on-the-fly DFT components of a forward wavefield:
// one real and one imaginary field per frequency.
type FreqWavefield struct {
	Freqs []float64 // kHz
	Re    [][]float64
	Im    [][]float64
	Sub   int // DFT subsampling factor
	Steps int // number of timesteps that contributed
}

// Engine is the modeling-engine contract consumed by the objective
// evaluator. All calls are synchronous and per shot; implementations may
// parallelize internally. Gradients are returned on the padded grid in
// engine layout and are pure adjoint applications (no dt scaling).
type Engine interface {
	// Forward models one shot and returns the predicted data
	// (timesteps × receivers). With save=true the forward wavefield is
	// retained, subsampled in time by sub, for a later Adjoint call.
	Forward(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, save bool, sub int) (*mat.Dense, *Wavefield, error)

	// Adjoint back-propagates the residual and returns the gradient of
	// ½‖residual‖² with respect to squared slowness, using the retained
	// forward wavefield.
	Adjoint(ctx context.Context, p *Params, rec ReceiverSpec, residual *mat.Dense, wf *Wavefield, sub int) ([]float64, error)

	// ForwardAdjoint runs the combined checkpointed forward+adjoint pass,
	// storing compressed snapshots bounded by numCheckpoints and
	// memBudget bytes instead of the full wavefield. If residualIsData,
	// data is injected directly as the adjoint source; otherwise the
	// residual predicted−data is formed internally. Returns the misfit
	// ½‖r‖²·dt and the gradient.
	ForwardAdjoint(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, data *mat.Dense, residualIsData bool, numCheckpoints int, memBudget int64) (float64, []float64, error)

	// ForwardFreq models one shot and accumulates on-the-fly DFT
	// components at the given frequencies, subsampled by dftSub.
	ForwardFreq(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, freqs []float64, dftSub int) (*mat.Dense, *FreqWavefield, error)

	// AdjointFreq back-propagates the residual and forms the gradient
	// from the stored frequency components of the forward wavefield.
	AdjointFreq(ctx context.Context, p *Params, rec ReceiverSpec, residual *mat.Dense, fwf *FreqWavefield) ([]float64, error)

	// Born applies the linearized forward operator (Jacobian) to a model
	// perturbation, returning the predicted data perturbation. The same
	// time-subsampling factor as the corresponding Adjoint makes the two
	// calls exact transposes of each other.
	Born(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, dm []float64, sub int) (*mat.Dense, error)
}
