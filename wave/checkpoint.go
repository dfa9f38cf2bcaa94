package wave

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pierrec/lz4/v4"
	"gonum.org/v1/gonum/mat"
)

// snapshot is a reconstruction point of the forward recurrence: the two
// consecutive wavefields needed to restart the time loop at step n.
type snapshot struct {
	n    int
	data []byte // lz4 frame of u[n] then u[n−1]
}

func compressPair(a, b []float64) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := binary.Write(zw, binary.LittleEndian, a); err != nil {
		zw.Close()
		return nil, err
	}
	if err := binary.Write(zw, binary.LittleEndian, b); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressPair(data []byte, a, b []float64) error {
	zr := lz4.NewReader(bytes.NewReader(data))
	if err := binary.Read(zr, binary.LittleEndian, a); err != nil {
		return err
	}
	return binary.Read(zr, binary.LittleEndian, b)
}

// ForwardAdjoint implements Engine. The forward pass stores lz4-compressed
// snapshots every interval steps instead of the full wavefield; the adjoint
// pass replays each interval from its snapshot, so the gradient is
// numerically identical to a full-save Adjoint with sub=1.
func (e *Acoustic) ForwardAdjoint(ctx context.Context, p *Params, src SourceSpec, rec ReceiverSpec, data *mat.Dense, residualIsData bool, numCheckpoints int, memBudget int64) (float64, []float64, error) {
	k, err := newKernel(p)
	if err != nil {
		return 0, nil, err
	}
	ss, err := newSampler(p, src.Coords)
	if err != nil {
		return 0, nil, err
	}
	rs, err := newSampler(p, rec.Coords)
	if err != nil {
		return 0, nil, err
	}
	nt := len(src.Wavelet)
	if nt < 2 {
		return 0, nil, fmt.Errorf("wave: wavelet has %d samples, need at least 2", nt)
	}
	rows, cols := data.Dims()
	if rows != nt || cols != len(rec.Coords) {
		return 0, nil, fmt.Errorf("wave: data is %d×%d, expected %d×%d", rows, cols, nt, len(rec.Coords))
	}

	steps := nt - 1
	if numCheckpoints <= 0 {
		numCheckpoints = int(math.Ceil(math.Sqrt(float64(steps))))
	}
	if memBudget > 0 {
		perSnap := int64(2 * k.ncells * 8) // uncompressed upper bound
		if maxSnaps := int(memBudget / perSnap); maxSnaps >= 2 && numCheckpoints > maxSnaps {
			numCheckpoints = maxSnaps
		}
	}
	interval := (steps + numCheckpoints - 1) / numCheckpoints
	if interval < 1 {
		interval = 1
	}

	// Forward sweep: predicted data plus snapshots at interval boundaries.
	u0 := make([]float64, k.ncells)
	u1 := make([]float64, k.ncells)
	un := make([]float64, k.ncells)
	pred := mat.NewDense(nt, cols, nil)

	zero, err := compressPair(u1, u0)
	if err != nil {
		return 0, nil, err
	}
	snaps := []snapshot{{n: 0, data: zero}}

	for n := 1; n < nt; n++ {
		if n&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return 0, nil, err
			}
		}
		k.step(un, u1, u0)
		for pi := range src.Coords {
			ss.inject(un, k.c, pi, src.Wavelet[n-1])
		}
		for r := range rec.Coords {
			pred.Set(n, r, rs.sample(un, r))
		}
		u0, u1, un = u1, un, u0
		if n%interval == 0 && n < nt-1 {
			snap, err := compressPair(u1, u0) // u1 = u[n], u0 = u[n−1]
			if err != nil {
				return 0, nil, err
			}
			snaps = append(snaps, snapshot{n: n, data: snap})
		}
	}

	// Residual and misfit.
	residual := mat.NewDense(nt, cols, nil)
	if residualIsData {
		residual.Copy(data)
	} else {
		residual.Sub(pred, data)
	}
	var misfit float64
	for n := 0; n < nt; n++ {
		for r := 0; r < cols; r++ {
			v := residual.At(n, r)
			misfit += v * v
		}
	}
	misfit *= 0.5 * p.Dt

	// Adjoint sweep, one replayed segment at a time.
	g := make([]float64, k.ncells)
	l2 := make([]float64, k.ncells)
	l1 := make([]float64, k.ncells)
	ln := make([]float64, k.ncells)

	isic := p.Imaging == InverseScattering
	var gu, gl, cl []float64
	if isic {
		gu = make([]float64, k.ncells)
		gl = make([]float64, k.ncells)
		cl = make([]float64, k.ncells)
	}

	// seg[m−(s−1)] holds u[m] for m in [s−1, segEnd].
	seg := make([][]float64, interval+2)
	for i := range seg {
		seg[i] = make([]float64, k.ncells)
	}

	segEnd := nt - 1
	for qi := len(snaps) - 1; qi >= 0; qi-- {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		s := snaps[qi].n
		if err := decompressPair(snaps[qi].data, seg[1], seg[0]); err != nil {
			return 0, nil, fmt.Errorf("wave: restore checkpoint at step %d: %w", s, err)
		}

		// Replay u[s+1..segEnd] from the snapshot.
		for m := s + 1; m <= segEnd; m++ {
			cur := seg[m-s+1]
			k.step(cur, seg[m-s], seg[m-s-1])
			for pi := range src.Coords {
				ss.inject(cur, k.c, pi, src.Wavelet[m-1])
			}
		}
		if p.OnReplay != nil && segEnd > s {
			p.OnReplay(segEnd - s)
		}

		// Walk the adjoint backward through the segment.
		for n := segEnd; n >= s+1; n-- {
			k.stepAdjoint(ln, l1, l2)
			for r := range rec.Coords {
				rs.inject(ln, nil, r, residual.At(n, r))
			}
			if n >= 2 {
				um, uc, up := seg[n-s-1], seg[n-s], seg[n-s+1]
				for i := range g {
					g[i] -= ln[i] * (up[i] - 2*uc[i] + um[i]) / p.M[i]
				}
				if isic {
					for i := range cl {
						cl[i] = k.c[i] * ln[i]
					}
					for a := range p.Shape {
						k.gradAxis(gu, uc, a)
						k.gradAxis(gl, cl, a)
						for i := range g {
							g[i] -= gu[i] * gl[i]
						}
					}
				}
			}
			l2, l1, ln = l1, ln, l2
		}
		segEnd = s
	}
	return misfit, g, nil
}
