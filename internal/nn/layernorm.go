package nn

import (
	"math"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/kan/internal/tensor"
)

// LayerNorm applies Layer Normalization over the last dimension of a [batch, features] input.
//
// Formula: Y = gamma * (X - mean(X)) / sqrt(var(X) + eps) + beta
//
// Statistics are computed per sample in float64. Gamma is initialized to ones, beta to zeros.
type LayerNorm struct {
	Gamma    *Parameter // learnable scale [features]
	Beta     *Parameter // learnable shift [features]
	Epsilon  float64    // numerical stability constant
	features int
}

// NewLayerNorm creates a new LayerNorm over features. prefix is prepended to the
// parameter names ("<prefix>gamma", "<prefix>beta").
func NewLayerNorm(prefix string, features int, epsilon float64) *LayerNorm {
	return &LayerNorm{
		Gamma:    NewParameter(prefix+"gamma", tensor.Full(tensor.Shape{features}, 1)),
		Beta:     NewParameter(prefix+"beta", tensor.Zeros(tensor.Shape{features})),
		Epsilon:  epsilon,
		features: features,
	}
}

func (l *LayerNorm) check(x *tensor.Tensor) {
	if x.Rank() != 2 || x.Dim(1) != l.features {
		exceptions.Panicf("nn.LayerNorm: expected input [batch, %d], got %s", l.features, x.Shape())
	}
}

// stats returns the mean and reciprocal standard deviation of row.
func (l *LayerNorm) stats(row []float32) (mean, rstd float64) {
	for _, v := range row {
		mean += float64(v)
	}
	mean /= float64(len(row))
	variance := 0.0
	for _, v := range row {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(row))
	return mean, 1.0 / math.Sqrt(variance+l.Epsilon)
}

// Forward applies LayerNorm to x.
func (l *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	l.check(x)
	out := tensor.Zeros(x.Shape())
	gamma, beta := l.Gamma.Tensor().Data(), l.Beta.Tensor().Data()
	for b := 0; b < x.Dim(0); b++ {
		row, dst := x.Row(b), out.Row(b)
		mean, rstd := l.stats(row)
		for i, v := range row {
			dst[i] = float32((float64(v)-mean)*rstd)*gamma[i] + beta[i]
		}
	}
	return out
}

// Backward accumulates gamma/beta gradients and returns dL/dx.
//
// x is the input that was given to Forward; statistics are recomputed from it.
func (l *LayerNorm) Backward(x, gradOut *tensor.Tensor) *tensor.Tensor {
	l.check(x)
	gradIn := tensor.Zeros(x.Shape())
	gamma := l.Gamma.Tensor().Data()
	dGamma, dBeta := l.Gamma.GradBuffer().Data(), l.Beta.GradBuffer().Data()
	n := float64(l.features)
	xHat := make([]float64, l.features)
	dxHat := make([]float64, l.features)

	for b := 0; b < x.Dim(0); b++ {
		row, g, dst := x.Row(b), gradOut.Row(b), gradIn.Row(b)
		mean, rstd := l.stats(row)
		var sumDxHat, sumDxHatXHat float64
		for i, v := range row {
			xHat[i] = (float64(v) - mean) * rstd
			dGamma[i] += g[i] * float32(xHat[i])
			dBeta[i] += g[i]
			dxHat[i] = float64(g[i]) * float64(gamma[i])
			sumDxHat += dxHat[i]
			sumDxHatXHat += dxHat[i] * xHat[i]
		}
		for i := range row {
			dst[i] = float32(rstd * (dxHat[i] - sumDxHat/n - xHat[i]*sumDxHatXHat/n))
		}
	}
	return gradIn
}

// Parameters returns the learnable parameters (gamma and beta).
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Gamma, l.Beta}
}
