package wave

import (
	"math"
)

// PadWidths gives the absorbing pad, per axis, as (before, after) point
// counts in engine axis order. A free surface drops the pad before the
// depth axis.
type PadWidths [][2]int

// Pads builds the standard pad widths: nb points on every side. When
// freeSurfaceAxis is non-negative, the pad before that axis is dropped
// (reflecting top boundary). Pass the depth axis in engine order.
func Pads(dim, nb int, freeSurfaceAxis int) PadWidths {
	p := make(PadWidths, dim)
	for a := range p {
		p[a] = [2]int{nb, nb}
		if a == freeSurfaceAxis {
			p[a][0] = 0
		}
	}
	return p
}

// PaddedShape returns the grid shape grown by the pad widths.
func PaddedShape(shape []int, pads PadWidths) []int {
	out := make([]int, len(shape))
	for a, n := range shape {
		out[a] = n + pads[a][0] + pads[a][1]
	}
	return out
}

// PaddedOrigin shifts the origin to the outer corner of the padded grid.
func PaddedOrigin(origin, spacing []float64, pads PadWidths) []float64 {
	out := make([]float64, len(origin))
	for a := range origin {
		out[a] = origin[a] - float64(pads[a][0])*spacing[a]
	}
	return out
}

// strides returns engine-layout strides: the first axis varies fastest.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	s[0] = 1
	for a := 1; a < len(shape); a++ {
		s[a] = s[a-1] * shape[a-1]
	}
	return s
}

func cells(shape []int) int {
	n := 1
	for _, v := range shape {
		n *= v
	}
	return n
}

// Pad extends a field onto the padded grid, replicating edge values into the
// boundary layer.
func Pad(field []float64, shape []int, pads PadWidths) []float64 {
	padded := PaddedShape(shape, pads)
	out := make([]float64, cells(padded))
	dim := len(shape)

	idx := make([]int, dim)
	for i := range out {
		// Decode padded index (first axis fastest), clamp into the
		// interior, then read the unpadded field.
		rem := i
		for a := 0; a < dim; a++ {
			idx[a] = rem % padded[a]
			rem /= padded[a]
		}
		src := 0
		stride := 1
		for a := 0; a < dim; a++ {
			p := idx[a] - pads[a][0]
			if p < 0 {
				p = 0
			} else if p >= shape[a] {
				p = shape[a] - 1
			}
			src += p * stride
			stride *= shape[a]
		}
		out[i] = field[src]
	}
	return out
}

// PadZero extends a field onto the padded grid with zeros in the boundary
// layer. It is the transpose of Trim with sum=false, as Pad is of Trim with
// sum=true.
func PadZero(field []float64, shape []int, pads PadWidths) []float64 {
	padded := PaddedShape(shape, pads)
	out := make([]float64, cells(padded))
	dim := len(shape)

	idx := make([]int, dim)
	for i := range out {
		rem := i
		for a := 0; a < dim; a++ {
			idx[a] = rem % padded[a]
			rem /= padded[a]
		}
		src := 0
		stride := 1
		inside := true
		for a := 0; a < dim; a++ {
			p := idx[a] - pads[a][0]
			if p < 0 || p >= shape[a] {
				inside = false
				break
			}
			src += p * stride
			stride *= shape[a]
		}
		if inside {
			out[i] = field[src]
		}
	}
	return out
}

// Trim removes the absorbing pad from a padded field. With sum=true the
// boundary contributions are accumulated into the nearest interior cell
// (matching engines that spill gradient energy into the pad); otherwise the
// pad is truncated.
func Trim(field []float64, shape []int, pads PadWidths, sum bool) []float64 {
	padded := PaddedShape(shape, pads)
	out := make([]float64, cells(shape))
	dim := len(shape)

	idx := make([]int, dim)
	for i, v := range field {
		rem := i
		for a := 0; a < dim; a++ {
			idx[a] = rem % padded[a]
			rem /= padded[a]
		}
		inside := true
		dst := 0
		stride := 1
		for a := 0; a < dim; a++ {
			p := idx[a] - pads[a][0]
			if p < 0 {
				p = 0
				inside = false
			} else if p >= shape[a] {
				p = shape[a] - 1
				inside = false
			}
			dst += p * stride
			stride *= shape[a]
		}
		if inside {
			out[dst] += v
		} else if sum {
			out[dst] += v
		}
	}
	return out
}

// Damping builds the sponge profile on the padded grid. The profile follows
// the cosine-taper layer
//
//	η(pos) = 1.5·log(1/0.001)/nb · (pos − sin(2π·pos)/2π) / h
//
// with pos growing linearly from 0 at the interior edge to 1 at the outer
// edge of the layer.
func Damping(shape []int, pads PadWidths, spacing []float64) []float64 {
	out := make([]float64, cells(shape))
	dim := len(shape)

	idx := make([]int, dim)
	for i := range out {
		rem := i
		for a := 0; a < dim; a++ {
			idx[a] = rem % shape[a]
			rem /= shape[a]
		}
		for a := 0; a < dim; a++ {
			var depth, nb int // points into the sponge layer along axis a
			if nbl := pads[a][0]; nbl > 0 && idx[a] < nbl {
				depth, nb = nbl-idx[a], nbl
			}
			if nbr := pads[a][1]; nbr > 0 && idx[a] >= shape[a]-nbr {
				depth, nb = idx[a]-(shape[a]-nbr)+1, nbr
			}
			if nb == 0 {
				continue
			}
			pos := float64(depth) / float64(nb)
			coeff := 1.5 * math.Log(1/0.001) / float64(nb)
			out[i] += coeff * (pos - math.Sin(2*math.Pi*pos)/(2*math.Pi)) / spacing[a]
		}
	}
	return out
}
