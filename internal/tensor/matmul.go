package tensor

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/kan/internal/parallel"
)

// kernelConfig fans matrix kernels out over output rows. One row is a full dot-product
// sweep, so chunks are kept small.
var kernelConfig = parallel.DefaultConfig().WithMinChunk(4)

func require2D(op string, ts ...*Tensor) {
	for _, t := range ts {
		if len(t.shape) != 2 {
			exceptions.Panicf("%s: expected 2D tensors, got shape %s", op, t.shape)
		}
	}
}

// MatMul computes a @ b for a [m, k] and b [k, n], returning [m, n].
func MatMul(a, b *Tensor) *Tensor {
	require2D("tensor.MatMul", a, b)
	m, k := a.shape[0], a.shape[1]
	if b.shape[0] != k {
		exceptions.Panicf("tensor.MatMul: inner dimensions differ: %s @ %s", a.shape, b.shape)
	}
	n := b.shape[1]
	out := Zeros(Shape{m, n})

	parallel.ForRange(m, func(start, end int) {
		for i := start; i < end; i++ {
			outRow := out.data[i*n : (i+1)*n]
			aRow := a.data[i*k : (i+1)*k]
			for p, av := range aRow {
				if av == 0 {
					continue
				}
				bRow := b.data[p*n : (p+1)*n]
				for j, bv := range bRow {
					outRow[j] += av * bv
				}
			}
		}
	}, kernelConfig)
	return out
}

// MatMulTransB computes a @ bᵀ for a [m, k] and b [n, k], returning [m, n].
//
// This is the "x @ W.T" of a linear layer whose weight is stored [out_features, in_features].
func MatMulTransB(a, b *Tensor) *Tensor {
	require2D("tensor.MatMulTransB", a, b)
	m, k := a.shape[0], a.shape[1]
	if b.shape[1] != k {
		exceptions.Panicf("tensor.MatMulTransB: inner dimensions differ: %s @ %sᵀ", a.shape, b.shape)
	}
	n := b.shape[0]
	out := Zeros(Shape{m, n})

	parallel.ForRange(m, func(start, end int) {
		for i := start; i < end; i++ {
			aRow := a.data[i*k : (i+1)*k]
			outRow := out.data[i*n : (i+1)*n]
			for j := 0; j < n; j++ {
				outRow[j] = Dot(aRow, b.data[j*k:(j+1)*k])
			}
		}
	}, kernelConfig)
	return out
}

// MatMulTransAAccumulate adds aᵀ @ b into dst, for a [m, n], b [m, k] and dst [n, k].
//
// This is the weight-gradient kernel: dW += gradOutᵀ @ x.
func MatMulTransAAccumulate(dst, a, b *Tensor) {
	require2D("tensor.MatMulTransAAccumulate", dst, a, b)
	m, n := a.shape[0], a.shape[1]
	k := b.shape[1]
	if b.shape[0] != m || dst.shape[0] != n || dst.shape[1] != k {
		exceptions.Panicf("tensor.MatMulTransAAccumulate: incompatible shapes dst=%s a=%s b=%s",
			dst.shape, a.shape, b.shape)
	}

	// Each worker owns a block of dst rows, so writes never overlap.
	parallel.ForRange(n, func(start, end int) {
		for i := 0; i < m; i++ {
			aRow := a.data[i*n : (i+1)*n]
			bRow := b.data[i*k : (i+1)*k]
			for j := start; j < end; j++ {
				av := aRow[j]
				if av == 0 {
					continue
				}
				dstRow := dst.data[j*k : (j+1)*k]
				for p, bv := range bRow {
					dstRow[p] += av * bv
				}
			}
		}
	}, kernelConfig)
}

// Dot returns the inner product of two equally sized vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}
