package kan

import (
	"math"
	"testing"

	"github.com/gomlx/bsplines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/internal/tensor"
)

func column(t *testing.T, values ...float32) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values), 1})
	require.NoError(t, err)
	return x
}

// interiorPoints returns n points strictly inside (lo, hi), avoiding the knots of a
// uniform grid.
func interiorPoints(lo, hi float64, n int) []float32 {
	points := make([]float32, n)
	for i := range points {
		points[i] = float32(lo + (hi-lo)*(float64(i)+0.37)/float64(n))
	}
	return points
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, safeDiv(3, 0))
	assert.Equal(t, 0.0, safeDiv(0, 0))
	assert.Equal(t, 1.5, safeDiv(3, 2))
}

func TestBasisOrderZeroIsIndicator(t *testing.T) {
	knots, err := BuildGrid(-1, 1, 4, 0)
	require.NoError(t, err)
	x := column(t, -0.9, -0.2, 0.1, 0.75, -1)
	bases := BSplineBasis(x, knots, 0)
	require.Equal(t, tensor.Shape{5, 1, 4}, bases.Shape())

	want := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 0, 0, 0}, // left knot belongs to its span
	}
	for b, row := range want {
		assert.Equal(t, row, bases.Data()[b*4:(b+1)*4], "sample %d", b)
	}
}

func TestBasisPartitionOfUnity(t *testing.T) {
	for order := 1; order <= 4; order++ {
		for _, gridSize := range []int{1, 3, 5, 8} {
			knots, err := BuildGrid(-1, 1, gridSize, order)
			require.NoError(t, err)
			points := interiorPoints(-1, 1, 23)
			bases := BSplineBasis(column(t, points...), knots, order)
			nb := gridSize + order
			require.Equal(t, tensor.Shape{len(points), 1, nb}, bases.Shape())

			for b, x := range points {
				sum := 0.0
				for _, v := range bases.Data()[b*nb : (b+1)*nb] {
					assert.GreaterOrEqual(t, v, float32(0))
					sum += float64(v)
				}
				assert.InDelta(t, 1.0, sum, 1e-5, "order %d, grid %d, x=%g", order, gridSize, x)
			}
		}
	}
}

func TestBasisFiniteOnMinimalGrid(t *testing.T) {
	for order := 0; order <= 5; order++ {
		knots, err := BuildGrid(-1, 1, 1, order)
		require.NoError(t, err)
		points := append(interiorPoints(-1, 1, 41), -1, 1, 0)
		bases, derivs := evaluateBasis(column(t, points...), knots, order, true)
		assert.True(t, bases.AllFinite(), "order %d", order)
		assert.True(t, derivs.AllFinite(), "order %d", order)
	}
}

func TestBasisOutsideKnotsIsZero(t *testing.T) {
	knots, err := BuildGrid(-1, 1, 3, 2)
	require.NoError(t, err)
	bases := BSplineBasis(column(t, -10, 10), knots, 2)
	for _, v := range bases.Data() {
		assert.Equal(t, float32(0), v)
	}
}

func TestBasisDerivativeMatchesFiniteDifferences(t *testing.T) {
	const h = 1e-4
	knots, err := BuildGrid(-1, 1, 4, 3)
	require.NoError(t, err)
	nb := 4 + 3
	scratch := make([]float64, len(knots)-1)
	plus, minus := make([]float32, nb), make([]float32, nb)
	value, deriv := make([]float32, nb), make([]float32, nb)

	for _, x := range interiorPoints(-1, 1, 17) {
		xf := float64(x)
		basisAt(xf, knots, 3, scratch, value, deriv)
		basisAt(xf+h, knots, 3, scratch, plus, nil)
		basisAt(xf-h, knots, 3, scratch, minus, nil)
		for j := range deriv {
			numeric := (float64(plus[j]) - float64(minus[j])) / (2 * h)
			assert.InDelta(t, numeric, deriv[j], 1e-2, "x=%g, j=%d", x, j)
		}
	}
}

// TestBasisMatchesReferenceEvaluator compares the recursion, run on the clamped knots of an
// independent B-spline implementation, against that implementation's own evaluation.
// The clamp repeats give zero-width spans, so this also exercises the safe division.
func TestBasisMatchesReferenceEvaluator(t *testing.T) {
	for degree := 1; degree <= 3; degree++ {
		const numControlPoints = 8
		ref := bsplines.NewRegular(degree, numControlPoints)
		controlPoints := make([]float64, ref.NumControlPoints())
		for i := range controlPoints {
			controlPoints[i] = math.Sin(float64(i) * 1.3)
		}
		ref = ref.WithControlPoints(controlPoints)

		knots := ref.ExpandedKnots()
		require.Equal(t, len(controlPoints), NumBasis(len(knots), degree))
		scratch := make([]float64, len(knots)-1)
		bases := make([]float32, len(controlPoints))

		for _, x := range interiorPoints(0, 1, 19) {
			basisAt(float64(x), knots, degree, scratch, bases, nil)
			got := 0.0
			for j, b := range bases {
				got += float64(b) * controlPoints[j]
			}
			assert.InDelta(t, ref.Evaluate(float64(x)), got, 1e-4, "degree %d, x=%g", degree, x)
		}
	}
}

func TestBasisShapeMismatchPanics(t *testing.T) {
	knots, err := BuildGrid(-1, 1, 3, 2)
	require.NoError(t, err)
	assert.Panics(t, func() { BSplineBasis(tensor.Zeros(tensor.Shape{4}), knots, 2) })
}

func BenchmarkBSplineBasis(b *testing.B) {
	knots, _ := BuildGrid(-1, 1, 5, 3)
	x := tensor.Zeros(tensor.Shape{64, 784})
	for i := range x.Data() {
		x.Data()[i] = float32(i%200)/100 - 1
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BSplineBasis(x, knots, 3)
	}
}
