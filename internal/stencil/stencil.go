// Package stencil holds the centered finite-difference weights shared by the
// reference engine and the CFL timestep computation. Keeping one table for
// both guarantees the stability estimate matches the stencil actually run.
package stencil

import "fmt"

// Second-derivative weights for centered stencils, indexed by half-width.
// weights[h] has length 2h+1 with the center at position h.
var weights = map[int][]float64{
	1: {1, -2, 1},
	2: {-1.0 / 12, 4.0 / 3, -5.0 / 2, 4.0 / 3, -1.0 / 12},
	4: {
		-1.0 / 560, 8.0 / 315, -1.0 / 5, 8.0 / 5,
		-205.0 / 72,
		8.0 / 5, -1.0 / 5, 8.0 / 315, -1.0 / 560,
	},
}

// Orders lists the supported spatial discretization orders.
func Orders() []int { return []int{2, 4, 8} }

// Supported reports whether order has a weight table.
func Supported(order int) bool {
	_, ok := weights[order/2]
	return ok && order%2 == 0
}

// Weights returns the full second-derivative stencil for the given even
// spatial order (2, 4 or 8). The returned slice must not be mutated.
func Weights(order int) ([]float64, error) {
	if order%2 != 0 {
		return nil, fmt.Errorf("stencil: odd space order %d", order)
	}
	w, ok := weights[order/2]
	if !ok {
		return nil, fmt.Errorf("stencil: unsupported space order %d", order)
	}
	return w, nil
}

// SumAbs returns the sum of absolute stencil weights for the given order,
// used by the CFL condition. The stability estimate always uses at least the
// 8th-order weights, which is the more conservative bound.
func SumAbs(order int) float64 {
	h := order / 2
	if h < 4 {
		h = 4
	}
	var s float64
	for _, w := range weights[h] {
		if w < 0 {
			s -= w
		} else {
			s += w
		}
	}
	return s
}
