// Package quant implements post-training dynamic int8 quantization of KAN stacks.
//
// Only the base-branch weights are quantized, symmetrically and per output row:
//
//	scale[o] = max(|w[o, :]|) / 127
//	q[o, i]  = round(w[o, i] / scale[o])      // in [-127, 127]
//
// Activations stay float32 and are multiplied against the weights dequantized on the fly.
// Spline weights, scalers and post-processing parameters are left untouched: the basis
// expansion is the accuracy-critical part of a KAN layer.
package quant

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/parallel"
	"github.com/born-ml/kan/internal/tensor"
)

// QMax is the largest quantized magnitude. -128 is never produced so the range is symmetric.
const QMax = 127

var projectConfig = parallel.DefaultConfig().WithMinChunk(8)

// Linear is an int8 weight matrix [out, in] with one float32 scale per output row.
// It implements kan.BaseProjector.
type Linear struct {
	weights []int8
	scales  []float32
	out, in int
}

// QuantizeLinear quantizes a float32 weight [out, in]. All-zero rows get scale 0.
func QuantizeLinear(w *tensor.Tensor) *Linear {
	if w.Rank() != 2 {
		exceptions.Panicf("quant.QuantizeLinear: weight must be 2D, got %s", w.Shape())
	}
	l := &Linear{
		out:     w.Dim(0),
		in:      w.Dim(1),
		weights: make([]int8, w.NumElements()),
		scales:  make([]float32, w.Dim(0)),
	}
	for o := 0; o < l.out; o++ {
		row := w.Row(o)
		var maxAbs float32
		for _, v := range row {
			maxAbs = max(maxAbs, float32(math.Abs(float64(v))))
		}
		if maxAbs == 0 {
			continue
		}
		scale := maxAbs / QMax
		l.scales[o] = scale
		q := l.weights[o*l.in : (o+1)*l.in]
		for i, v := range row {
			r := math.Round(float64(v / scale))
			q[i] = int8(max(-QMax, min(QMax, r)))
		}
	}
	return l
}

// NewLinear wraps already quantized weights, e.g. read back from disk.
func NewLinear(weights []int8, scales []float32, out, in int) *Linear {
	if len(weights) != out*in || len(scales) != out {
		exceptions.Panicf("quant.NewLinear: %d weights and %d scales do not match shape [%d, %d]",
			len(weights), len(scales), out, in)
	}
	return &Linear{weights: weights, scales: scales, out: out, in: in}
}

// Shape returns [out, in].
func (l *Linear) Shape() tensor.Shape {
	return tensor.Shape{l.out, l.in}
}

// Weights returns the quantized values, row-major.
func (l *Linear) Weights() []int8 {
	return l.weights
}

// Scales returns the per-row scales.
func (l *Linear) Scales() []float32 {
	return l.scales
}

// Dequantize returns the float32 approximation of the original weight.
func (l *Linear) Dequantize() *tensor.Tensor {
	out := tensor.Zeros(l.Shape())
	data := out.Data()
	for o, scale := range l.scales {
		for i, q := range l.weights[o*l.in : (o+1)*l.in] {
			data[o*l.in+i] = float32(q) * scale
		}
	}
	return out
}

// Bytes returns the storage size: one byte per weight plus 4 per scale.
func (l *Linear) Bytes() int64 {
	return int64(len(l.weights)) + 4*int64(len(l.scales))
}

// Project computes x @ dequant(W)ᵀ for x [batch, in], returning [batch, out].
// The scale is applied once per output element, after the integer-weighted sum.
func (l *Linear) Project(x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 2 || x.Dim(1) != l.in {
		panic(errors.Wrapf(kan.ErrShapeMismatch, "quant.Linear.Project: input %s does not match weight %s", x.Shape(), l.Shape()))
	}
	batch := x.Dim(0)
	y := tensor.Zeros(tensor.Shape{batch, l.out})
	xs, ys := x.Data(), y.Data()
	parallel.ForRange(batch, func(start, end int) {
		for b := start; b < end; b++ {
			xRow := xs[b*l.in : (b+1)*l.in]
			yRow := ys[b*l.out : (b+1)*l.out]
			for o, scale := range l.scales {
				if scale == 0 {
					continue
				}
				var acc float32
				for i, q := range l.weights[o*l.in : (o+1)*l.in] {
					acc += xRow[i] * float32(q)
				}
				yRow[o] = acc * scale
			}
		}
	}, projectConfig)
	return y
}
