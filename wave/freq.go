package wave

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ForwardFreq implements Engine. Instead of retaining time slices, the
// forward wavefield is Fourier-transformed on the fly: every dftSub-th step
// contributes cos(ωt)·u to the real part and −sin(ωt)·u to the imaginary
// part, one accumulator pair per frequency. Frequencies are in kHz, matching
// time in ms.
func (e *Acoustic) ForwardFreq(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, freqs []float64, dftSub int) (*mat.Dense, *FreqWavefield, error) {
	if len(freqs) == 0 {
		return nil, nil, fmt.Errorf("wave: frequency-domain forward needs at least one frequency")
	}
	if dftSub < 1 {
		dftSub = 1
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

	fwf := &FreqWavefield{
		Freqs: append([]float64(nil), freqs...),
		Re:    make([][]float64, len(freqs)),
		Im:    make([][]float64, len(freqs)),
		Sub:   dftSub,
	}
	for f := range freqs {
		fwf.Re[f] = make([]float64, k.ncells)
		fwf.Im[f] = make([]float64, k.ncells)
	}

	data := mat.NewDense(nt, len(rec.Coords), nil)
	u0 := make([]float64, k.ncells)
	u1 := make([]float64, k.ncells)
	un := make([]float64, k.ncells)

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
		if n%dftSub == 0 {
			t := float64(n) * p.Dt
			for f, freq := range freqs {
				omega := 2 * math.Pi * freq
				cw, sw := math.Cos(omega*t), math.Sin(omega*t)
				re, im := fwf.Re[f], fwf.Im[f]
				for i, v := range un {
					re[i] += cw * v
					im[i] -= sw * v
				}
			}
			fwf.Steps++
		}
		u0, u1, un = u1, un, u0
	}
	return data, fwf, nil
}

// AdjointFreq implements Engine. The adjoint field is transformed with the
// same on-the-fly DFT as the forward, and the gradient is assembled in the
// frequency domain:
//
//	g[i] = (2·dt²·dftSub / (m[i]·J)) · Σ_f ω² (Ur·Vr + Ui·Vi)[i]
//
// where J is the number of contributing time steps. This approximates the
// zero-lag correlation of λ with ∂²u/∂t² using only len(freqs) field pairs
// of storage.
func (e *Acoustic) AdjointFreq(ctx context.Context, p *Params, rec ReceiverSpec, residual *mat.Dense, fwf *FreqWavefield) ([]float64, error) {
	if fwf == nil || len(fwf.Freqs) == 0 {
		return nil, fmt.Errorf("wave: frequency-domain adjoint requires a forward DFT wavefield")
	}
	k, err := newKernel(p)
	if err != nil {
		return nil, err
	}
	rs, err := newSampler(p, rec.Coords)
	if err != nil {
		return nil, err
	}
	nt, cols := residual.Dims()
	if cols != len(rec.Coords) {
		return nil, fmt.Errorf("wave: residual has %d traces, geometry has %d receivers", cols, len(rec.Coords))
	}
	for f := range fwf.Freqs {
		if len(fwf.Re[f]) != k.ncells || len(fwf.Im[f]) != k.ncells {
			return nil, fmt.Errorf("wave: DFT wavefield has %d cells, grid has %d", len(fwf.Re[f]), k.ncells)
		}
	}
	dftSub := fwf.Sub
	if dftSub < 1 {
		dftSub = 1
	}

	vr := make([][]float64, len(fwf.Freqs))
	vi := make([][]float64, len(fwf.Freqs))
	for f := range fwf.Freqs {
		vr[f] = make([]float64, k.ncells)
		vi[f] = make([]float64, k.ncells)
	}

	l2 := make([]float64, k.ncells)
	l1 := make([]float64, k.ncells)
	ln := make([]float64, k.ncells)

	steps := 0
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
		if n%dftSub == 0 {
			t := float64(n) * p.Dt
			for f, freq := range fwf.Freqs {
				omega := 2 * math.Pi * freq
				cw, sw := math.Cos(omega*t), math.Sin(omega*t)
				re, im := vr[f], vi[f]
				for i, v := range ln {
					re[i] += cw * v
					im[i] -= sw * v
				}
			}
			steps++
		}
		l2, l1, ln = l1, ln, l2
	}

	samples := fwf.Steps
	if samples == 0 {
		samples = steps
	}
	if samples == 0 {
		return nil, fmt.Errorf("wave: no DFT samples accumulated, dftSub %d exceeds trace length", dftSub)
	}

	g := make([]float64, k.ncells)
	scale := 2 * p.Dt * p.Dt * float64(dftSub) / float64(samples)
	for f, freq := range fwf.Freqs {
		omega := 2 * math.Pi * freq
		w2 := omega * omega
		ur, ui := fwf.Re[f], fwf.Im[f]
		for i := range g {
			g[i] += w2 * (ur[i]*vr[f][i] + ui[i]*vi[f][i])
		}
	}
	for i := range g {
		g[i] *= scale / p.M[i]
	}
	return g, nil
}
