package wave

import "math"

// Ricker builds a Ricker wavelet with peak frequency f0 (kHz) sampled at dt
// (ms), delayed by 1/f0 so the onset is causal.
func Ricker(f0, dt float64, nt int) []float64 {
	w := make([]float64, nt)
	t0 := 1 / f0
	for n := range w {
		t := float64(n)*dt - t0
		a := math.Pi * f0 * t
		a *= a
		w[n] = (1 - 2*a) * math.Exp(-a)
	}
	return w
}
