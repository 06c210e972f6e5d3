package kan

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/kan/internal/parallel"
	"github.com/born-ml/kan/internal/tensor"
)

// basisConfig fans basis evaluation out over (sample, feature) pairs.
var basisConfig = parallel.DefaultConfig().WithMinChunk(256)

// NumBasis returns the number of order-splineOrder basis functions over a knot vector of
// length gridLen.
func NumBasis(gridLen, splineOrder int) int {
	return gridLen - 1 - splineOrder
}

// safeDiv returns num/den, or 0 when den is exactly zero.
//
// Used for every Cox–de Boor weight: a zero-width knot span contributes nothing.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// deBoorStep raises the degree of bases in place from k-1 to k. bases holds n values on entry
// and n-1 meaningful values on return. Ascending j keeps bases[j+1] at degree k-1 when read.
func deBoorStep(x float64, knots []float64, k int, bases []float64, n int) {
	for j := 0; j < n-1; j++ {
		left := safeDiv(x-knots[j], knots[j+k]-knots[j]) * bases[j]
		right := safeDiv(knots[j+k+1]-x, knots[j+k+1]-knots[j+1]) * bases[j+1]
		bases[j] = left + right
	}
}

// basisAt evaluates the basis functions at x into out (len NumBasis) and, if deriv is not nil,
// their derivatives with respect to x. scratch must have len(knots)-1 elements.
func basisAt(x float64, knots []float64, order int, scratch []float64, out, deriv []float32) {
	n := len(knots) - 1

	// Degree 0: indicator of the half-open span [t_j, t_{j+1}).
	for j := 0; j < n; j++ {
		if x >= knots[j] && x < knots[j+1] {
			scratch[j] = 1
		} else {
			scratch[j] = 0
		}
	}

	for k := 1; k <= order; k++ {
		if k == order && deriv != nil {
			// dB_{k,j} = k * (B_{k-1,j}/(t_{j+k}-t_j) - B_{k-1,j+1}/(t_{j+k+1}-t_{j+1}))
			for j := range deriv {
				d := safeDiv(scratch[j], knots[j+k]-knots[j]) -
					safeDiv(scratch[j+1], knots[j+k+1]-knots[j+1])
				deriv[j] = float32(float64(k) * d)
			}
		}
		deBoorStep(x, knots, k, scratch, n-k+1)
	}
	if order == 0 && deriv != nil {
		clear(deriv)
	}

	for j := range out {
		out[j] = float32(scratch[j])
	}
}

// BSplineBasis evaluates the order-splineOrder B-spline basis of every input value.
//
// x is [batch, in_features]; the result is [batch, in_features, NumBasis(len(knots), splineOrder)].
// Inputs outside the knot span produce all-zero basis vectors. Degenerate knot spans never
// produce NaN or Inf.
func BSplineBasis(x *tensor.Tensor, knots []float64, splineOrder int) *tensor.Tensor {
	bases, _ := evaluateBasis(x, knots, splineOrder, false)
	return bases
}

// evaluateBasis is BSplineBasis, optionally also returning dB/dx with the same shape.
func evaluateBasis(x *tensor.Tensor, knots []float64, order int, withDerivative bool) (bases, derivs *tensor.Tensor) {
	if x.Rank() != 2 {
		shapeMismatchf("basis input must be [batch, in_features], got shape %s", x.Shape())
	}
	numBasis := NumBasis(len(knots), order)
	if order < 0 || numBasis < 1 {
		exceptions.Panicf("kan: %d knots cannot carry an order %d basis", len(knots), order)
	}

	batch, features := x.Dim(0), x.Dim(1)
	bases = tensor.Zeros(tensor.Shape{batch, features, numBasis})
	if withDerivative {
		derivs = tensor.Zeros(tensor.Shape{batch, features, numBasis})
	}
	xs, out := x.Data(), bases.Data()

	parallel.ForRange(batch*features, func(start, end int) {
		scratch := make([]float64, len(knots)-1)
		var deriv []float32
		for p := start; p < end; p++ {
			if derivs != nil {
				deriv = derivs.Data()[p*numBasis : (p+1)*numBasis]
			}
			basisAt(float64(xs[p]), knots, order, scratch, out[p*numBasis:(p+1)*numBasis], deriv)
		}
	}, basisConfig)
	return bases, derivs
}
