package wave

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Acoustic is the reference engine: a second-order-in-time acoustic
// finite-difference propagator with a sponge absorbing layer. Its adjoint
// and Born operators are exact discrete transposes of the forward
// propagation, so dot-product tests hold to rounding error.
//
// The zero value is not usable; call NewAcoustic.
type Acoustic struct{}

// NewAcoustic returns the reference acoustic engine.
func NewAcoustic() *Acoustic { return &Acoustic{} }

var _ Engine = (*Acoustic)(nil)

const ctxCheckMask = 0xff

// Forward implements Engine.
func (e *Acoustic) Forward(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, save bool, sub int) (*mat.Dense, *Wavefield, error) {
	if sub < 1 {
		sub = 1
	}
	k, err := newKernel(p)
	if err != nil {
		return nil, nil, err
	}
	ss, err := newSampler(p, src.Coords)
	if err != nil {
		return nil, nil, err
	}
	rs, err := newSampler(p, rec.Coords)
	if err != nil {
		return nil, nil, err
	}
	nt := len(src.Wavelet)
	if nt < 2 {
		return nil, nil, fmt.Errorf("wave: wavelet has %d samples, need at least 2", nt)
	}

	data := mat.NewDense(nt, len(rec.Coords), nil)
	u0 := make([]float64, k.ncells)
	u1 := make([]float64, k.ncells)
	un := make([]float64, k.ncells)

	var wf *Wavefield
	if save {
		wf = &Wavefield{Sub: sub, Nt: nt}
		wf.Slices = append(wf.Slices, make([]float64, k.ncells)) // u at step 0
	}

	for n := 1; n < nt; n++ {
		if n&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		k.step(un, u1, u0)
		for pi := range src.Coords {
			ss.inject(un, k.c, pi, src.Wavelet[n-1])
		}
		for r := range rec.Coords {
			data.Set(n, r, rs.sample(un, r))
		}
		if save && n%sub == 0 {
			s := make([]float64, k.ncells)
			copy(s, un)
			wf.Slices = append(wf.Slices, s)
		}
		u0, u1, un = u1, un, u0
	}
	return data, wf, nil
}

// Adjoint implements Engine. The returned gradient is the exact transpose of
// Born applied to the residual, on the padded grid, without dt scaling.
func (e *Acoustic) Adjoint(ctx context.Context, p *Params, rec ReceiverSpec, residual *mat.Dense, wf *Wavefield, sub int) ([]float64, error) {
	if sub < 1 {
		sub = 1
	}
	if wf == nil {
		return nil, fmt.Errorf("wave: adjoint requires a retained forward wavefield")
	}
	if wf.Sub != sub {
		return nil, fmt.Errorf("wave: wavefield saved with subsampling %d, adjoint asked for %d", wf.Sub, sub)
	}
	k, err := newKernel(p)
	if err != nil {
		return nil, err
	}
	rs, err := newSampler(p, rec.Coords)
	if err != nil {
		return nil, err
	}
	nt := wf.Nt
	rows, cols := residual.Dims()
	if rows != nt || cols != len(rec.Coords) {
		return nil, fmt.Errorf("wave: residual is %d×%d, expected %d×%d", rows, cols, nt, len(rec.Coords))
	}

	g := make([]float64, k.ncells)
	l2 := make([]float64, k.ncells) // λ[n+2]
	l1 := make([]float64, k.ncells) // λ[n+1]
	ln := make([]float64, k.ncells) // λ[n]

	isic := p.Imaging == InverseScattering
	var gu, gl, cl []float64
	if isic {
		gu = make([]float64, k.ncells)
		gl = make([]float64, k.ncells)
		cl = make([]float64, k.ncells)
	}

	for n := nt - 1; n >= 1; n-- {
		if n&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k.stepAdjoint(ln, l1, l2)
		for r := range rec.Coords {
			rs.inject(ln, nil, r, residual.At(n, r))
		}

		// The Born source for slot n lives at saved index j=(n−1)/sub;
		// its transpose accumulates the gradient here.
		if (n-1)%sub == 0 {
			j := (n - 1) / sub
			if j >= 1 && j+1 < len(wf.Slices) {
				um, uc, up := wf.Slices[j-1], wf.Slices[j], wf.Slices[j+1]
				invSub := 1 / float64(sub)
				for i := range g {
					g[i] -= ln[i] * (up[i] - 2*uc[i] + um[i]) * invSub / p.M[i]
				}
				if isic {
					for i := range cl {
						cl[i] = k.c[i] * ln[i]
					}
					for a := range p.Shape {
						k.gradAxis(gu, uc, a)
						k.gradAxis(gl, cl, a)
						for i := range g {
							g[i] -= gu[i] * gl[i] * invSub
						}
					}
				}
			}
		}
		l2, l1, ln = l1, ln, l2
	}
	return g, nil
}
