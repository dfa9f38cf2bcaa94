package wave

import (
	"fmt"
	"math"

	"github.com/seisgo/seisgo/internal/stencil"
)

// kernel precomputes everything a time loop needs: stencil weights scaled by
// the grid spacing, the dt²/m field and the sponge factors. The discrete
// update is
//
//	u[n] = (2−η·dt)·u[n−1] − (1−η·dt)·u[n−2] + (dt²/m)·(L·u[n−1] + src)
//
// with L the symmetric centered Laplacian and Dirichlet edges. Because L is
// symmetric and the sponge factors are diagonal, the exact transpose of the
// propagation is the same recurrence run backward with L applied to
// (dt²/m)·λ, which is what stepAdjoint does.
type kernel struct {
	shape   []int
	strides []int
	ncells  int

	c     []float64 // dt²/m
	dampA []float64 // 2 − η·dt
	dampB []float64 // 1 − η·dt

	w     []float64 // stencil weights, center at half
	half  int
	invH2 []float64 // 1/h² per axis

	scratch  []float64
	scratch2 []float64
}

func newKernel(p *Params) (*kernel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w, err := stencil.Weights(p.SpaceOrder)
	if err != nil {
		return nil, err
	}

	k := &kernel{
		shape:   p.Shape,
		strides: strides(p.Shape),
		ncells:  cells(p.Shape),
		w:       w,
		half:    len(w) / 2,
		invH2:   make([]float64, len(p.Shape)),
	}
	for a, h := range p.Spacing {
		k.invH2[a] = 1 / (h * h)
	}

	dt := p.Dt
	k.c = make([]float64, k.ncells)
	k.dampA = make([]float64, k.ncells)
	k.dampB = make([]float64, k.ncells)
	for i := range k.c {
		if p.M[i] <= 0 {
			return nil, fmt.Errorf("wave: non-positive slowness at cell %d", i)
		}
		k.c[i] = dt * dt / p.M[i]
		eta := p.Damp[i] * dt
		k.dampA[i] = 2 - eta
		k.dampB[i] = 1 - eta
	}
	k.scratch = make([]float64, k.ncells)
	k.scratch2 = make([]float64, k.ncells)
	return k, nil
}

// lap computes dst = L·src with Dirichlet (zero) values outside the grid.
func (k *kernel) lap(dst, src []float64) {
	center := 0.0
	for _, inv := range k.invH2 {
		center += k.w[k.half] * inv
	}
	for i := range dst {
		dst[i] = center * src[i]
	}
	for a := range k.shape {
		for t := 1; t <= k.half; t++ {
			k.lapAxis(dst, src, a, t, k.w[k.half+t]*k.invH2[a])
		}
	}
}

// lapAxis adds the symmetric off-center contributions at offset ±t along
// axis a.
func (k *kernel) lapAxis(dst, src []float64, a, t int, wt float64) {
	sa := k.strides[a]
	na := k.shape[a]
	block := na * sa
	outer := k.ncells / block
	off := t * sa

	for o := 0; o < outer; o++ {
		base := o * block
		for p := 0; p < na-t; p++ {
			lo := base + p*sa
			hi := lo + off
			for inn := 0; inn < sa; inn++ {
				dst[lo+inn] += wt * src[hi+inn]
				dst[hi+inn] += wt * src[lo+inn]
			}
		}
	}
}

// step advances the forward recurrence: un = A·u1 + B·u0 where
// A = diag(2−η·dt) + diag(dt²/m)·L and B = −diag(1−η·dt). Sources are
// injected by the caller afterwards.
func (k *kernel) step(un, u1, u0 []float64) {
	k.lap(k.scratch, u1)
	for i := range un {
		un[i] = k.dampA[i]*u1[i] - k.dampB[i]*u0[i] + k.c[i]*k.scratch[i]
	}
}

// stepAdjoint advances the adjoint recurrence, the exact transpose of step:
// ln = Aᵀ·l1 + Bᵀ·l2 with Aᵀ = diag(2−η·dt) + L·diag(dt²/m).
func (k *kernel) stepAdjoint(ln, l1, l2 []float64) {
	for i := range l1 {
		k.scratch2[i] = k.c[i] * l1[i]
	}
	k.lap(k.scratch, k.scratch2)
	for i := range ln {
		ln[i] = k.dampA[i]*l1[i] - k.dampB[i]*l2[i] + k.scratch[i]
	}
}

// gradAxis computes dst = D_a·src, the forward difference along axis a
// (zero where the neighbor is missing). Used by the inverse-scattering
// imaging condition.
func (k *kernel) gradAxis(dst, src []float64, a int) {
	sa := k.strides[a]
	na := k.shape[a]
	block := na * sa
	outer := k.ncells / block
	invH := math.Sqrt(k.invH2[a])

	for i := range dst {
		dst[i] = 0
	}
	for o := 0; o < outer; o++ {
		base := o * block
		for p := 0; p < na-1; p++ {
			lo := base + p*sa
			for inn := 0; inn < sa; inn++ {
				dst[lo+inn] = (src[lo+sa+inn] - src[lo+inn]) * invH
			}
		}
	}
}

// divAxisT accumulates dst += D_aᵀ·src, the exact transpose of gradAxis.
func (k *kernel) divAxisT(dst, src []float64, a int) {
	sa := k.strides[a]
	na := k.shape[a]
	block := na * sa
	outer := k.ncells / block
	invH := math.Sqrt(k.invH2[a])

	for o := 0; o < outer; o++ {
		base := o * block
		for p := 0; p < na-1; p++ {
			lo := base + p*sa
			for inn := 0; inn < sa; inn++ {
				v := src[lo+inn] * invH
				dst[lo+sa+inn] += v
				dst[lo+inn] -= v
			}
		}
	}
}

// sampler precomputes multilinear interpolation corners and weights for a
// set of physical positions. The same table serves injection (scatter) and
// sampling (gather), so the two operators are exact transposes.
type sampler struct {
	idx [][]int
	wgt [][]float64
}

func newSampler(p *Params, pts [][]float64) (*sampler, error) {
	dim := len(p.Shape)
	st := strides(p.Shape)
	s := &sampler{
		idx: make([][]int, len(pts)),
		wgt: make([][]float64, len(pts)),
	}

	base := make([]int, dim)
	frac := make([]float64, dim)
	for pi, pt := range pts {
		if len(pt) != dim {
			return nil, fmt.Errorf("wave: position %d has %d axes, grid has %d", pi, len(pt), dim)
		}
		for a := 0; a < dim; a++ {
			rel := (pt[a] - p.Origin[a]) / p.Spacing[a]
			b := int(math.Floor(rel))
			if b < 0 || b+1 >= p.Shape[a] {
				return nil, fmt.Errorf("%w: position %d at %g on axis %d", ErrOutOfGrid, pi, pt[a], a)
			}
			base[a] = b
			frac[a] = rel - float64(b)
		}
		corners := 1 << dim
		idx := make([]int, corners)
		wgt := make([]float64, corners)
		for c := 0; c < corners; c++ {
			flat := 0
			w := 1.0
			for a := 0; a < dim; a++ {
				bit := (c >> a) & 1
				flat += (base[a] + bit) * st[a]
				if bit == 1 {
					w *= frac[a]
				} else {
					w *= 1 - frac[a]
				}
			}
			idx[c] = flat
			wgt[c] = w
		}
		s.idx[pi] = idx
		s.wgt[pi] = wgt
	}
	return s, nil
}

// inject scatters amp·scale into the field at point pi. scale may be nil.
func (s *sampler) inject(field, scale []float64, pi int, amp float64) {
	for c, fi := range s.idx[pi] {
		v := amp * s.wgt[pi][c]
		if scale != nil {
			v *= scale[fi]
		}
		field[fi] += v
	}
}

// sample gathers the field value at point pi.
func (s *sampler) sample(field []float64, pi int) float64 {
	var v float64
	for c, fi := range s.idx[pi] {
		v += field[fi] * s.wgt[pi][c]
	}
	return v
}
