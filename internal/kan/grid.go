package kan

import (
	"math"

	"github.com/pkg/errors"
)

// BuildGrid returns the knot vector of a layer: gridSize+2*splineOrder+1 values uniformly spaced
// at h = (hi-lo)/gridSize, from lo-splineOrder*h to hi+splineOrder*h.
//
// The same knots are used for every input feature of the layer.
func BuildGrid(lo, hi float64, gridSize, splineOrder int) ([]float64, error) {
	switch {
	case gridSize <= 0:
		return nil, errors.Wrapf(ErrConfiguration, "grid size must be positive, got %d", gridSize)
	case splineOrder < 0:
		return nil, errors.Wrapf(ErrConfiguration, "spline order must be non-negative, got %d", splineOrder)
	case math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0):
		return nil, errors.Wrapf(ErrConfiguration, "grid range [%g, %g] is not finite", lo, hi)
	case hi <= lo:
		return nil, errors.Wrapf(ErrConfiguration, "grid range [%g, %g] is empty or inverted", lo, hi)
	}

	h := (hi - lo) / float64(gridSize)
	knots := make([]float64, gridSize+2*splineOrder+1)
	for i := range knots {
		knots[i] = lo + float64(i-splineOrder)*h
	}
	return knots, nil
}
