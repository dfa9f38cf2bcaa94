package wave

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Born implements Engine. dm lives on the padded grid in engine layout.
// The linearized source applied at slot n=j·sub+1 is
//
//	b = −(dm/m)·(U[j+1] − 2·U[j] + U[j−1])/sub
//
// plus, under the inverse-scattering condition, the gradient-correlation
// term. Adjoint accumulates the exact transpose of the same expressions, so
// ⟨Born·dm, y⟩ = ⟨dm, Adjoint(y)⟩ up to rounding.
func (e *Acoustic) Born(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, dm []float64, sub int) (*mat.Dense, error) {
	if sub < 1 {
		sub = 1
	}
	k, err := newKernel(p)
	if err != nil {
		return nil, err
	}
	if len(dm) != k.ncells {
		return nil, fmt.Errorf("wave: perturbation has %d samples, grid has %d cells", len(dm), k.ncells)
	}

	// Background wavefield, saved at the same subsampling the adjoint
	// uses so the two operators stay exact transposes.
	_, wf, err := e.Forward(ctx, p, src, rec, true, sub)
	if err != nil {
		return nil, err
	}
	rs, err := newSampler(p, rec.Coords)
	if err != nil {
		return nil, err
	}
	nt := wf.Nt

	du0 := make([]float64, k.ncells)
	du1 := make([]float64, k.ncells)
	dun := make([]float64, k.ncells)
	ddata := mat.NewDense(nt, len(rec.Coords), nil)

	isic := p.Imaging == InverseScattering
	var gu, tmp, acc []float64
	if isic {
		gu = make([]float64, k.ncells)
		tmp = make([]float64, k.ncells)
		acc = make([]float64, k.ncells)
	}

	invSub := 1 / float64(sub)
	for n := 1; n < nt; n++ {
		if n&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k.step(dun, du1, du0)

		if (n-1)%sub == 0 {
			j := (n - 1) / sub
			if j >= 1 && j+1 < len(wf.Slices) {
				um, uc, up := wf.Slices[j-1], wf.Slices[j], wf.Slices[j+1]
				for i := range dun {
					dun[i] -= dm[i] * (up[i] - 2*uc[i] + um[i]) * invSub / p.M[i]
				}
				if isic {
					for i := range acc {
						acc[i] = 0
					}
					for a := range p.Shape {
						k.gradAxis(gu, uc, a)
						for i := range tmp {
							tmp[i] = dm[i] * gu[i]
						}
						k.divAxisT(acc, tmp, a)
					}
					for i := range dun {
						dun[i] -= k.c[i] * acc[i] * invSub
					}
				}
			}
		}
		for r := range rec.Coords {
			ddata.Set(n, r, rs.sample(dun, r))
		}
		du0, du1, dun = du1, dun, du0
	}
	return ddata, nil
}
