// Package resample aligns recorded time series with the computational
// timestep of the modeling engine by linear interpolation.
package resample

import "gonum.org/v1/gonum/mat"

// Series resamples x (sampled at dtIn) onto ntOut samples at dtOut, using
// linear interpolation and clamping beyond the last input sample.
func Series(x []float64, dtIn, dtOut float64, ntOut int) []float64 {
	out := make([]float64, ntOut)
	if len(x) == 0 {
		return out
	}
	for n := 0; n < ntOut; n++ {
		pos := float64(n) * dtOut / dtIn
		i := int(pos)
		if i >= len(x)-1 {
			out[n] = x[len(x)-1]
			continue
		}
		frac := pos - float64(i)
		out[n] = x[i]*(1-frac) + x[i+1]*frac
	}
	return out
}

// Traces resamples every column of d (sampled at dtIn) onto ntOut rows at
// dtOut.
func Traces(d *mat.Dense, dtIn, dtOut float64, ntOut int) *mat.Dense {
	rows, cols := d.Dims()
	out := mat.NewDense(ntOut, cols, nil)
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, d)
		res := Series(col, dtIn, dtOut, ntOut)
		for n := 0; n < ntOut; n++ {
			out.Set(n, c, res[n])
		}
	}
	return out
}
