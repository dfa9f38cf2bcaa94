package seisgo

import (
	"math"

	"github.com/seisgo/seisgo/geometry"
	"github.com/seisgo/seisgo/model"
)

// Restrict computes the index box covering every source and receiver
// position of the two geometries, expanded by buffer meters per side and
// clamped to the model grid. The box is at least two points wide per axis so
// the cropped model stays a valid grid.
func Restrict(m *model.Model, src, rec *geometry.Geometry, buffer float64) (model.CropBounds, error) {
	if m.Dim() != 3 {
		return model.CropBounds{}, &ConfigError{
			Field:  "LimitModelToReceiverArea",
			Reason: "domain restriction requires a 3-D model",
		}
	}

	sLo, sHi := src.Bounds()
	rLo, rHi := rec.Bounds()
	origin := m.Origin()
	spacing := m.Spacing()
	shape := m.Shape()

	bounds := model.CropBounds{
		Lo: make([]int, m.Dim()),
		Hi: make([]int, m.Dim()),
	}
	for a := 0; a < m.Dim(); a++ {
		lo := math.Min(sLo[a], rLo[a]) - buffer
		hi := math.Max(sHi[a], rHi[a]) + buffer

		iLo := int(math.Floor((lo - origin[a]) / spacing[a]))
		iHi := int(math.Ceil((hi-origin[a])/spacing[a])) + 1
		if iLo < 0 {
			iLo = 0
		}
		if iHi > shape[a] {
			iHi = shape[a]
		}
		// Grow degenerate boxes toward the interior.
		for iHi-iLo < 2 {
			if iLo > 0 {
				iLo--
			} else if iHi < shape[a] {
				iHi++
			} else {
				break
			}
		}
		bounds.Lo[a] = iLo
		bounds.Hi[a] = iHi
	}
	return bounds, nil
}

// Extend places a gradient computed on a cropped grid back onto the full
// grid. Cells outside the crop box are exactly zero.
func Extend(full *model.Model, bounds model.CropBounds, croppedGrad []float64) ([]float64, error) {
	return full.Embed(bounds, croppedGrad)
}
